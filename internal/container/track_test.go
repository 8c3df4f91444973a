package container

import (
	"encoding/binary"
	"os"
	"testing"
)

func sizeOf(payload []byte) uint32 { return uint32(8 + len(payload)) }

func writeBox(f *os.File, typ string, size uint32, payload []byte) {
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], size)
	copy(header[4:8], []byte(typ))
	f.Write(header)
	f.Write(payload)
}

// TestExtractTracksClassifiesVideoTrackFromHandlerType builds a minimal
// moov/trak/mdia/hdlr/minf/stbl tree with handler_type "vide" and asserts
// ExtractTracks reports it as TrackVideo, exercising parseHandlerType's
// byte offset (payload[8:12], the handler_type field, not the always-zero
// pre_defined field at payload[4:8]) end to end through Probe+ExtractTracks.
func TestExtractTracksClassifiesVideoTrackFromHandlerType(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "track-*.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())
	defer tmpfile.Close()

	// tkhd v0: version/flags, creation/modification time, track_id=1,
	// reserved, duration, ..., width/height in the last 8 bytes.
	tkhdPayload := make([]byte, 84)
	binary.BigEndian.PutUint32(tkhdPayload[12:16], 1) // track_id
	binary.BigEndian.PutUint32(tkhdPayload[76:80], 640<<16)
	binary.BigEndian.PutUint32(tkhdPayload[80:84], 480<<16)
	tkhdSize := sizeOf(tkhdPayload)

	// mdhd v0: version/flags, creation/modification time, timescale,
	// duration, language+pre_defined.
	mdhdPayload := make([]byte, 24)
	binary.BigEndian.PutUint32(mdhdPayload[12:16], 600) // timescale
	binary.BigEndian.PutUint32(mdhdPayload[16:20], 1200)
	mdhdSize := sizeOf(mdhdPayload)

	// hdlr: version/flags, pre_defined (always zero), handler_type, reserved.
	hdlrPayload := make([]byte, 24)
	copy(hdlrPayload[8:12], []byte("vide"))
	hdlrSize := sizeOf(hdlrPayload)

	// stsd: version/flags, entry_count=1, sample entry size, codec tag.
	stsdPayload := make([]byte, 16)
	binary.BigEndian.PutUint32(stsdPayload[4:8], 1)
	copy(stsdPayload[12:16], []byte("avc1"))
	stsdSize := sizeOf(stsdPayload)

	// stts: one run of 2 samples, each 512 timescale units long.
	sttsPayload := make([]byte, 16)
	binary.BigEndian.PutUint32(sttsPayload[4:8], 1)
	binary.BigEndian.PutUint32(sttsPayload[8:12], 2)
	binary.BigEndian.PutUint32(sttsPayload[12:16], 512)
	sttsSize := sizeOf(sttsPayload)

	// stsz: uniform sample size 100, 2 samples.
	stszPayload := make([]byte, 12)
	binary.BigEndian.PutUint32(stszPayload[4:8], 100)
	binary.BigEndian.PutUint32(stszPayload[8:12], 2)
	stszSize := sizeOf(stszPayload)

	// stsc: one chunk holding both samples.
	stscPayload := make([]byte, 20)
	binary.BigEndian.PutUint32(stscPayload[4:8], 1)
	binary.BigEndian.PutUint32(stscPayload[8:12], 1)  // first_chunk
	binary.BigEndian.PutUint32(stscPayload[12:16], 2) // samples_per_chunk
	binary.BigEndian.PutUint32(stscPayload[16:20], 1) // sample_description_index
	stscSize := sizeOf(stscPayload)

	// stco: one chunk at byte offset 5000.
	stcoPayload := make([]byte, 12)
	binary.BigEndian.PutUint32(stcoPayload[4:8], 1)
	binary.BigEndian.PutUint32(stcoPayload[8:12], 5000)
	stcoSize := sizeOf(stcoPayload)

	// stss: sample 1 is a sync sample.
	stssPayload := make([]byte, 12)
	binary.BigEndian.PutUint32(stssPayload[4:8], 1)
	binary.BigEndian.PutUint32(stssPayload[8:12], 1)
	stssSize := sizeOf(stssPayload)

	stblSize := 8 + stsdSize + sttsSize + stszSize + stscSize + stcoSize + stssSize
	minfSize := 8 + stblSize
	mdiaSize := 8 + mdhdSize + hdlrSize + minfSize
	trakSize := 8 + tkhdSize + mdiaSize
	moovSize := 8 + trakSize

	writeHeaderOnly(tmpfile, "moov", moovSize)
	writeHeaderOnly(tmpfile, "trak", trakSize)
	writeBox(tmpfile, "tkhd", tkhdSize, tkhdPayload)
	writeHeaderOnly(tmpfile, "mdia", mdiaSize)
	writeBox(tmpfile, "mdhd", mdhdSize, mdhdPayload)
	writeBox(tmpfile, "hdlr", hdlrSize, hdlrPayload)
	writeHeaderOnly(tmpfile, "minf", minfSize)
	writeHeaderOnly(tmpfile, "stbl", stblSize)
	writeBox(tmpfile, "stsd", stsdSize, stsdPayload)
	writeBox(tmpfile, "stts", sttsSize, sttsPayload)
	writeBox(tmpfile, "stsz", stszSize, stszPayload)
	writeBox(tmpfile, "stsc", stscSize, stscPayload)
	writeBox(tmpfile, "stco", stcoSize, stcoPayload)
	writeBox(tmpfile, "stss", stssSize, stssPayload)

	tmpfile.Sync()
	tmpfile.Seek(0, 0)

	atoms, err := Probe(tmpfile)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	moov := Find(atoms, "moov")
	if moov == nil {
		t.Fatalf("expected a moov atom, got %v", atoms)
	}

	tracks, err := NewDemuxer(tmpfile).ExtractTracks(*moov)
	if err != nil {
		t.Fatalf("ExtractTracks failed: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	tr := tracks[0]
	if tr.Type != TrackVideo {
		t.Errorf("expected TrackVideo, got %q", tr.Type)
	}
	if tr.Width != 640 || tr.Height != 480 {
		t.Errorf("expected 640x480, got %dx%d", tr.Width, tr.Height)
	}
	if len(tr.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(tr.Samples))
	}
	if !tr.Samples[0].IsKeyframe {
		t.Errorf("expected sample 0 to be a keyframe")
	}
	if tr.Samples[1].IsKeyframe {
		t.Errorf("expected sample 1 not to be a keyframe")
	}
}

func writeHeaderOnly(f *os.File, typ string, size uint32) {
	writeBox(f, typ, size, nil)
}

func TestNearestKeyframeAtOrBeforeFindsLatestEligibleKeyframe(t *testing.T) {
	track := Track{Samples: []Sample{
		{Index: 0, IsKeyframe: true, Time: 0, Offset: 100},
		{Index: 1, IsKeyframe: false, Time: 1, Offset: 200},
		{Index: 2, IsKeyframe: true, Time: 2, Offset: 300},
		{Index: 3, IsKeyframe: false, Time: 3, Offset: 400},
	}}

	s, ok := track.NearestKeyframeAtOrBefore(2.5)
	if !ok || s.Offset != 300 {
		t.Fatalf("expected keyframe at offset 300, got %v ok=%v", s, ok)
	}

	s, ok = track.NearestKeyframeAtOrBefore(0.5)
	if !ok || s.Offset != 100 {
		t.Fatalf("expected keyframe at offset 100, got %v ok=%v", s, ok)
	}

	_, ok = track.NearestKeyframeAtOrBefore(-1)
	if ok {
		t.Errorf("expected no keyframe before the start")
	}
}

func TestExpandChunkEntriesFlattensRunLengthGroups(t *testing.T) {
	entries := []stscEntry{
		{firstChunk: 1, samplesPerChunk: 2},
		{firstChunk: 3, samplesPerChunk: 1},
	}
	got := expandChunkEntries(entries, 4)
	want := []int{0, 0, 1, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("at %d: expected chunk %d, got %d", i, want[i], got[i])
		}
	}
}
