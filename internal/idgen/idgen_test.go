package idgen

import "testing"

func TestSourceID_StableAcrossCalls(t *testing.T) {
	a := SourceID("/repo/docs/readme.md")
	b := SourceID("/repo/docs/readme.md")
	if a != b {
		t.Fatalf("SourceID not stable: %s != %s", a, b)
	}
}

func TestSourceID_DiffersByPath(t *testing.T) {
	a := SourceID("/repo/docs/readme.md")
	b := SourceID("/repo/docs/other.md")
	if a == b {
		t.Fatalf("SourceID collided for different paths")
	}
}

func TestNewChunkID_Unique(t *testing.T) {
	a := NewChunkID()
	b := NewChunkID()
	if a == b {
		t.Fatalf("NewChunkID produced identical ids")
	}
}

func TestDeterministicChunkID_StableForSameInputs(t *testing.T) {
	src := SourceID("/repo/docs/readme.md")
	a := DeterministicChunkID(src, 3)
	b := DeterministicChunkID(src, 3)
	if a != b {
		t.Fatalf("DeterministicChunkID not stable: %s != %s", a, b)
	}
}

func TestDeterministicChunkID_DiffersByOrdinal(t *testing.T) {
	src := SourceID("/repo/docs/readme.md")
	a := DeterministicChunkID(src, 1)
	b := DeterministicChunkID(src, 2)
	if a == b {
		t.Fatalf("DeterministicChunkID collided across ordinals")
	}
}

func TestBlockID_StableAndTruncatesPrefix(t *testing.T) {
	long := ""
	for i := 0; i < 500; i++ {
		long += "x"
	}
	a := BlockID("function", long, 10, 100)
	b := BlockID("function", long, 10, 100)
	if a != b {
		t.Fatalf("BlockID not stable: %s != %s", a, b)
	}

	c := BlockID("function", long, 11, 100)
	if a == c {
		t.Fatalf("BlockID did not vary with start line")
	}

	d := BlockID("function", long+"tail", 10, 100)
	if a != d {
		t.Fatalf("BlockID varied with content beyond the 100-char prefix")
	}
}
