package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// TrackType mirrors the ISO handler-type tags this package cares about.
type TrackType string

const (
	TrackVideo TrackType = "vide"
	TrackAudio TrackType = "soun"
	TrackOther TrackType = "othr"
)

// Sample is one entry of a track's flat sample table: byte offset, size,
// presentation time, and keyframe flag, built by cross-referencing
// stts/stsz/stsc/stco/stss. Grounded on cromedia's core/demux.go Sample type.
type Sample struct {
	Index      int
	IsKeyframe bool
	Offset     int64
	Size       uint32
	Time       float64 // seconds
	Duration   float64 // seconds
}

// Track is the probed structural summary of one MP4 track: enough to drive
// the decoder adapter's seek policy without touching pixel data.
type Track struct {
	ID          int
	Type        TrackType
	Timescale   uint32
	Duration    uint64
	Width       int
	Height      int
	CodecTag    string
	MediaOffset int64 // elst media_time, in track timescale units
	Samples     []Sample
}

// KeyframeTimes returns the presentation time (seconds) of every keyframe,
// in sample-table order. The decoder's seek path does not use it; it
// calls NearestKeyframeAtOrBefore.
func (t Track) KeyframeTimes() []float64 {
	var out []float64
	for _, s := range t.Samples {
		if s.IsKeyframe {
			out = append(out, s.Time)
		}
	}
	return out
}

// NearestKeyframeAtOrBefore returns the last keyframe sample whose time is
// <= targetSeconds, or (Sample{}, false) if the track has none that early.
// This backs the decoder adapter's seek policy from spec.md §4.4: a seek
// always lands on a keyframe at or before the requested frame.
func (t Track) NearestKeyframeAtOrBefore(targetSeconds float64) (Sample, bool) {
	best := -1
	for i, s := range t.Samples {
		if s.IsKeyframe && s.Time <= targetSeconds {
			best = i
		}
	}
	if best < 0 {
		return Sample{}, false
	}
	return t.Samples[best], true
}

// Demuxer extracts the structural track model from a probed atom tree.
// It never reads sample payloads — only the index tables in stbl.
type Demuxer struct {
	file *os.File
}

func NewDemuxer(file *os.File) *Demuxer {
	return &Demuxer{file: file}
}

// ExtractTracks walks moov's trak children and builds a Track per entry,
// skipping any track whose tables can't be parsed rather than failing the
// whole probe — matching cromedia's own tolerance policy in ExtractTracks.
// The per-track errors are returned only when no track is usable.
func (d *Demuxer) ExtractTracks(moov Atom) ([]Track, error) {
	var tracks []Track
	var errs []error
	for _, child := range moov.Children {
		if child.Type != "trak" {
			continue
		}
		t, err := d.parseTrack(child)
		if err != nil {
			errs = append(errs, fmt.Errorf("trak at %d: %w", child.Offset, err))
			continue
		}
		tracks = append(tracks, *t)
	}
	if len(tracks) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("container: no usable tracks: %v", errs)
	}
	return tracks, nil
}

func (d *Demuxer) parseTrack(trak Atom) (*Track, error) {
	t := &Track{}

	if tkhd := trak.Child("tkhd"); tkhd != nil {
		if err := d.parseTkhd(tkhd, t); err != nil {
			return nil, fmt.Errorf("tkhd: %w", err)
		}
	}

	mdia := trak.Child("mdia")
	if mdia == nil {
		return nil, fmt.Errorf("missing mdia")
	}
	if mdhd := mdia.Child("mdhd"); mdhd != nil {
		if err := d.parseMdhd(mdhd, t); err != nil {
			return nil, fmt.Errorf("mdhd: %w", err)
		}
	}
	if hdlr := mdia.Child("hdlr"); hdlr != nil {
		t.Type = d.parseHandlerType(hdlr)
	}

	minf := mdia.Child("minf")
	if minf == nil {
		return nil, fmt.Errorf("missing minf")
	}
	stbl := minf.Child("stbl")
	if stbl == nil {
		return nil, fmt.Errorf("missing stbl")
	}
	if stsd := stbl.Child("stsd"); stsd != nil {
		t.CodecTag = d.parseCodecTag(stsd)
	}

	samples, err := d.mapSamples(stbl)
	if err != nil {
		return nil, fmt.Errorf("sample table: %w", err)
	}
	NormalizeTimes(samples, t.Timescale)
	t.Samples = samples

	if edts := trak.Child("edts"); edts != nil {
		if elst := edts.Child("elst"); elst != nil {
			if offset, err := d.parseElstMediaTime(elst); err == nil {
				t.MediaOffset = offset
			}
		}
	}

	return t, nil
}

func (d *Demuxer) parseTkhd(tkhd *Atom, t *Track) error {
	payload, err := readPayload(d.file, tkhd)
	if err != nil {
		return err
	}
	version := payload[0]
	// track_id and the fixed-size fields differ between version 0 (32-bit
	// times) and version 1 (64-bit) — only the width/height trailer at the
	// end of the box is fixed-size regardless of version.
	idOffset := 12
	if version == 1 {
		idOffset = 20
	}
	if len(payload) < idOffset+4 {
		return fmt.Errorf("tkhd too short")
	}
	t.ID = int(binary.BigEndian.Uint32(payload[idOffset : idOffset+4]))
	if len(payload) >= 4 {
		tail := payload[len(payload)-8:]
		t.Width = int(binary.BigEndian.Uint32(tail[0:4]) >> 16)
		t.Height = int(binary.BigEndian.Uint32(tail[4:8]) >> 16)
	}
	return nil
}

func (d *Demuxer) parseMdhd(mdhd *Atom, t *Track) error {
	payload, err := readPayload(d.file, mdhd)
	if err != nil {
		return err
	}
	version := payload[0]
	if version == 1 {
		if len(payload) < 32 {
			return fmt.Errorf("mdhd v1 too short")
		}
		t.Timescale = binary.BigEndian.Uint32(payload[20:24])
		t.Duration = binary.BigEndian.Uint64(payload[24:32])
		return nil
	}
	if len(payload) < 16 {
		return fmt.Errorf("mdhd v0 too short")
	}
	t.Timescale = binary.BigEndian.Uint32(payload[12:16])
	t.Duration = uint64(binary.BigEndian.Uint32(payload[16:20]))
	return nil
}

func (d *Demuxer) parseHandlerType(hdlr *Atom) TrackType {
	payload, err := readPayload(d.file, hdlr)
	if err != nil || len(payload) < 12 {
		return TrackOther
	}
	switch string(payload[8:12]) {
	case "vide":
		return TrackVideo
	case "soun":
		return TrackAudio
	default:
		return TrackOther
	}
}

func (d *Demuxer) parseCodecTag(stsd *Atom) string {
	payload, err := readPayload(d.file, stsd)
	if err != nil || len(payload) < 16 {
		return ""
	}
	return string(payload[12:16])
}

func (d *Demuxer) parseElstMediaTime(elst *Atom) (int64, error) {
	payload, err := readPayload(d.file, elst)
	if err != nil || len(payload) < 8 {
		return 0, fmt.Errorf("elst too short")
	}
	version := payload[0]
	entryCount := binary.BigEndian.Uint32(payload[4:8])
	if entryCount == 0 {
		return 0, nil
	}
	r := bytes.NewReader(payload[8:])
	if version == 1 {
		var segDuration uint64
		var mediaTime int64
		binary.Read(r, binary.BigEndian, &segDuration)
		binary.Read(r, binary.BigEndian, &mediaTime)
		return mediaTime, nil
	}
	var segDuration uint32
	var mediaTime int32
	binary.Read(r, binary.BigEndian, &segDuration)
	binary.Read(r, binary.BigEndian, &mediaTime)
	return int64(mediaTime), nil
}
