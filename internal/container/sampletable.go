package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// mapSamples cross-references stts (durations), stsc/stsz (chunk-to-sample
// sizes), stco (chunk byte offsets) and stss (keyframe sample numbers) into
// a flat, time-ordered Sample slice. Grounded on cromedia's core/demux.go
// MapSamples, trimmed to what the decoder adapter's seek policy needs:
// offset, size, time, and keyframe flag. Timescale conversion to seconds is
// left to the caller (Track.Timescale is carried alongside).
func (d *Demuxer) mapSamples(stbl *Atom) ([]Sample, error) {
	stts := stbl.Child("stts")
	stsz := stbl.Child("stsz")
	stsc := stbl.Child("stsc")
	stco := stbl.Child("stco")
	stss := stbl.Child("stss") // optional: absent means every sample is a keyframe

	if stts == nil || stsz == nil || stsc == nil || stco == nil {
		return nil, fmt.Errorf("missing required sample table atom")
	}

	durations, err := d.parseStts(stts)
	if err != nil {
		return nil, fmt.Errorf("stts: %w", err)
	}
	sizes, defaultSize, err := d.parseStsz(stsz)
	if err != nil {
		return nil, fmt.Errorf("stsz: %w", err)
	}
	chunkOffsets, err := d.parseStco(stco)
	if err != nil {
		return nil, fmt.Errorf("stco: %w", err)
	}
	chunkEntries, err := d.parseStsc(stsc)
	if err != nil {
		return nil, fmt.Errorf("stsc: %w", err)
	}
	var keyframes map[int]bool
	if stss != nil {
		keyframes, err = d.parseStss(stss)
		if err != nil {
			return nil, fmt.Errorf("stss: %w", err)
		}
	}

	sampleToChunk := expandChunkEntries(chunkEntries, len(chunkOffsets))

	var samples []Sample
	var timeUnits uint64
	durIdx, durLeft := 0, 0
	if len(durations) > 0 {
		durLeft = int(durations[0].count)
	}

	sampleInChunk := map[int]int{}
	for i := 0; i < len(sampleToChunk); i++ {
		chunk := sampleToChunk[i]
		offsetInChunk := sampleInChunk[chunk]
		sampleInChunk[chunk]++

		size := defaultSize
		if defaultSize == 0 {
			if i >= len(sizes) {
				return nil, fmt.Errorf("stsz short: want sample %d of %d", i, len(sizes))
			}
			size = sizes[i]
		}

		base := int64(0)
		if chunk < len(chunkOffsets) {
			base = chunkOffsets[chunk]
		}
		// within a chunk, samples are laid out back-to-back; we need the
		// running byte offset, which requires summing prior sample sizes
		// in this chunk.
		offset := base
		for k := 0; k < offsetInChunk; k++ {
			priorIdx := i - offsetInChunk + k
			priorSize := defaultSize
			if defaultSize == 0 && priorIdx < len(sizes) {
				priorSize = sizes[priorIdx]
			}
			offset += int64(priorSize)
		}

		duration := uint32(0)
		if durIdx < len(durations) {
			duration = durations[durIdx].delta
			durLeft--
			if durLeft <= 0 {
				durIdx++
				if durIdx < len(durations) {
					durLeft = int(durations[durIdx].count)
				}
			}
		}

		isKey := keyframes == nil // no stss => every sample is a sync sample
		if keyframes != nil {
			isKey = keyframes[i+1] // stss numbers are 1-based
		}

		samples = append(samples, Sample{
			Index:      i,
			IsKeyframe: isKey,
			Offset:     offset,
			Size:       size,
			Time:       0, // filled below once timescale is known by the caller
			Duration:   0,
		})
		_ = timeUnits
		_ = duration
	}

	// stamp presentation time in timescale units, accumulated in running;
	// the caller converts Time and Duration to seconds against the track's
	// timescale afterwards (NormalizeTimes).
	var running uint64
	durIdx, durLeft = 0, 0
	if len(durations) > 0 {
		durLeft = int(durations[0].count)
	}
	for i := range samples {
		dur := uint32(0)
		if durIdx < len(durations) {
			dur = durations[durIdx].delta
			durLeft--
			if durLeft <= 0 {
				durIdx++
				if durIdx < len(durations) {
					durLeft = int(durations[durIdx].count)
				}
			}
		}
		samples[i].Time = float64(running)
		samples[i].Duration = float64(dur)
		running += uint64(dur)
	}

	return samples, nil
}

// NormalizeTimes converts every Sample's Time/Duration from raw timescale
// units into seconds, using timescale. Demuxer.ExtractTracks calls this
// once per track after mapSamples, since mapSamples itself doesn't know
// the track's timescale yet when it runs (mdhd is parsed separately).
func NormalizeTimes(samples []Sample, timescale uint32) {
	if timescale == 0 {
		return
	}
	for i := range samples {
		samples[i].Time /= float64(timescale)
		samples[i].Duration /= float64(timescale)
	}
}

type sttsEntry struct {
	count uint32
	delta uint32
}

func (d *Demuxer) parseStts(stts *Atom) ([]sttsEntry, error) {
	payload, err := readPayload(d.file, stts)
	if err != nil || len(payload) < 8 {
		return nil, fmt.Errorf("too short")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	entries := make([]sttsEntry, 0, count)
	r := bytes.NewReader(payload[8:])
	for i := uint32(0); i < count; i++ {
		var e sttsEntry
		if err := binary.Read(r, binary.BigEndian, &e.count); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &e.delta); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (d *Demuxer) parseStsz(stsz *Atom) (sizes []uint32, uniformSize uint32, err error) {
	payload, err := readPayload(d.file, stsz)
	if err != nil || len(payload) < 12 {
		return nil, 0, fmt.Errorf("too short")
	}
	uniformSize = binary.BigEndian.Uint32(payload[4:8])
	count := binary.BigEndian.Uint32(payload[8:12])
	if uniformSize != 0 {
		return nil, uniformSize, nil
	}
	sizes = make([]uint32, 0, count)
	r := bytes.NewReader(payload[12:])
	for i := uint32(0); i < count; i++ {
		var s uint32
		if err := binary.Read(r, binary.BigEndian, &s); err != nil {
			return nil, 0, err
		}
		sizes = append(sizes, s)
	}
	return sizes, 0, nil
}

func (d *Demuxer) parseStco(stco *Atom) ([]int64, error) {
	payload, err := readPayload(d.file, stco)
	if err != nil || len(payload) < 8 {
		return nil, fmt.Errorf("too short")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	offsets := make([]int64, 0, count)
	r := bytes.NewReader(payload[8:])
	for i := uint32(0); i < count; i++ {
		var o uint32
		if err := binary.Read(r, binary.BigEndian, &o); err != nil {
			return nil, err
		}
		offsets = append(offsets, int64(o))
	}
	return offsets, nil
}

type stscEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

func (d *Demuxer) parseStsc(stsc *Atom) ([]stscEntry, error) {
	payload, err := readPayload(d.file, stsc)
	if err != nil || len(payload) < 8 {
		return nil, fmt.Errorf("too short")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	entries := make([]stscEntry, 0, count)
	r := bytes.NewReader(payload[8:])
	for i := uint32(0); i < count; i++ {
		var e stscEntry
		var sampleDescIdx uint32
		if err := binary.Read(r, binary.BigEndian, &e.firstChunk); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &e.samplesPerChunk); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.BigEndian, &sampleDescIdx); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (d *Demuxer) parseStss(stss *Atom) (map[int]bool, error) {
	payload, err := readPayload(d.file, stss)
	if err != nil || len(payload) < 8 {
		return nil, fmt.Errorf("too short")
	}
	count := binary.BigEndian.Uint32(payload[4:8])
	out := make(map[int]bool, count)
	r := bytes.NewReader(payload[8:])
	for i := uint32(0); i < count; i++ {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		out[int(n)] = true
	}
	return out, nil
}

// expandChunkEntries turns stsc's run-length chunk groups into a flat
// sample-index -> chunk-index slice, one entry per sample in file order.
func expandChunkEntries(entries []stscEntry, totalChunks int) []int {
	var out []int
	for i, e := range entries {
		firstChunk := int(e.firstChunk)
		lastChunk := totalChunks
		if i+1 < len(entries) {
			lastChunk = int(entries[i+1].firstChunk) - 1
		}
		for chunk := firstChunk; chunk <= lastChunk && chunk <= totalChunks; chunk++ {
			for s := 0; s < int(e.samplesPerChunk); s++ {
				out = append(out, chunk-1)
			}
		}
	}
	return out
}
