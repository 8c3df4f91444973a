package container

import (
	"encoding/binary"
	"os"
	"testing"
)

func TestProbeWalksAtomTreeAndRecursesIntoMoov(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "probe-*.mp4")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	writeAtom := func(typ string, size uint32) {
		b := make([]byte, 8)
		binary.BigEndian.PutUint32(b[0:4], size)
		copy(b[4:8], []byte(typ))
		tmpfile.Write(b)
	}

	writeAtom("ftyp", 20)
	tmpfile.Write(make([]byte, 12))

	writeAtom("moov", 108)
	writeAtom("mvhd", 100)
	tmpfile.Write(make([]byte, 92))

	writeAtom("mdat", 1000)
	tmpfile.Write(make([]byte, 992))

	tmpfile.Sync()
	tmpfile.Seek(0, 0)

	atoms, err := Probe(tmpfile)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(atoms) != 3 {
		t.Fatalf("expected 3 top-level atoms, got %d", len(atoms))
	}
	if atoms[0].Type != "ftyp" {
		t.Errorf("expected first atom ftyp, got %s", atoms[0].Type)
	}
	if atoms[1].Type != "moov" {
		t.Errorf("expected second atom moov, got %s", atoms[1].Type)
	}
	if len(atoms[1].Children) != 1 || atoms[1].Children[0].Type != "mvhd" {
		t.Errorf("expected moov to have one mvhd child, got %v", atoms[1].Children)
	}
}

func TestFindReturnsFirstMatchingAtom(t *testing.T) {
	atoms := []Atom{{Type: "ftyp"}, {Type: "moov"}, {Type: "mdat"}}
	got := Find(atoms, "moov")
	if got == nil || got.Type != "moov" {
		t.Fatalf("expected to find moov, got %v", got)
	}
	if Find(atoms, "free") != nil {
		t.Errorf("expected no match for free")
	}
}
