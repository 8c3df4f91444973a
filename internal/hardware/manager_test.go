package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/apperr"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/libav"
)

func TestAcquireHWDeviceNoneNeverOpensAContext(t *testing.T) {
	m := New()

	h1, err := m.Acquire(libav.HWDeviceNone, false)
	require.NoError(t, err)
	h2, err := m.Acquire(libav.HWDeviceNone, false)
	require.NoError(t, err)

	assert.Nil(t, h1.Context())
	assert.Equal(t, 0, m.Active())

	h1.Release()
	h2.Release()
	assert.Equal(t, 0, m.Active())
}

// Without the libav build tag, libav.OpenDeviceContext always fails
// (libav_stub.go), so these exercise the manager's fallback/error paths
// against that stub rather than a real device.
func TestAcquireFallsBackToSoftwareWhenAllowed(t *testing.T) {
	m := New()

	h, err := m.Acquire(libav.HWDeviceCUDA, true)
	require.NoError(t, err)
	assert.Nil(t, h.Context())
	assert.Equal(t, 0, m.Active())
}

func TestAcquireReturnsHardwareInitFailureWithoutFallback(t *testing.T) {
	m := New()

	_, err := m.Acquire(libav.HWDeviceCUDA, false)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.HardwareInitFailure))
}
