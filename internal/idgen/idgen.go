// Package idgen computes the deterministic identifiers spec.md requires:
// source_id (UUIDv5 over the absolute file path), chunk_id (UUIDv4 unless a
// test asks for determinism), and block_id (a fast non-cryptographic hash
// of type + first-100-chars + position). google/uuid supplies the UUID
// algorithms (not present in the teacher's own go.mod, pulled in from the
// rest of the retrieval pack); cespare/xxhash/v2 supplies the block hash,
// reused from the same library the teacher uses for trigram hashing.
package idgen

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// SourceID derives a stable per-file UUID from its absolute path so that
// re-parsing an unchanged file always yields the same id (spec §3, §8
// "idempotence law").
func SourceID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(absPath)).String()
}

// NewChunkID returns a fresh random chunk identifier.
func NewChunkID() string {
	return uuid.New().String()
}

// DeterministicChunkID derives a chunk_id from source_id+ordinal for tests
// that need chunk identity to be reproducible across runs (spec §9 design
// note: "UUIDv5(source_id, ordinal) ... in case tests demand determinism").
func DeterministicChunkID(sourceID string, ordinal int) string {
	ns, err := uuid.Parse(sourceID)
	if err != nil {
		ns = uuid.NameSpaceOID
	}
	return uuid.NewSHA1(ns, []byte(fmt.Sprintf("%d", ordinal))).String()
}

// BlockID hashes the block's identity fields into a deterministic id: the
// same (type, content-prefix, start_line, start_offset) tuple always
// produces the same BlockID, which is exactly the "deterministic hash law"
// spec §8 requires across re-parses of unchanged content.
func BlockID(blockType string, content string, startLine, startOffset int) string {
	prefix := content
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", blockType, prefix, startLine, startOffset)
	return fmt.Sprintf("%016x", h.Sum64())
}
