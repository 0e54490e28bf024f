// Package extract implements C4 Block Extractors (spec §4.4): stateless,
// per-call extractors polymorphic over {CanProcess(path) -> bool,
// Parse(path, content) -> FileStructure}. Grounded on the teacher's
// internal/parser package (tree-sitter setup, per-language node walking,
// panic recovery around CGO parses) generalized from symbol/reference
// extraction to the spec's block/chunk-oriented FileStructure model.
package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/standardbeagle/ingestd/internal/idgen"
	"github.com/standardbeagle/ingestd/internal/types"
)

// Extractor is the capability set every block extractor implements. A nil
// content is passed by callers that only want a fast, content-independent
// CanProcess check (e.g. routing by extension); extractors whose
// CanProcess needs to sniff content (the text extractor) treat nil as "no
// opinion based on content" and fall back to extension rules alone.
type Extractor interface {
	CanProcess(path string, content []byte) bool
	Parse(path string, content []byte) (*types.FileStructure, error)
}

// draftPattern matches spec §4.4's "draft/temp files" override, applied by
// the caller (FileProcessor/Chunker) on top of any extractor's chunk_type.
var draftPattern = regexp.MustCompile(`(?i)draft|tmp|temp`)

// IsDraftPath reports whether the file name of path should force every
// chunk from it to ChunkTypeDraft regardless of block type (spec §4.4
// "Common invariants"). Directory names are not considered.
func IsDraftPath(path string) bool {
	return draftPattern.MatchString(filepath.Base(path))
}

// ChunkTypeForBlock implements spec §4.4's common chunk_type mapping.
func ChunkTypeForBlock(path string, bt types.BlockType) types.ChunkType {
	if IsDraftPath(path) {
		return types.ChunkTypeDraft
	}
	switch bt {
	case types.BlockCode, types.BlockFunction, types.BlockClass, types.BlockMethod:
		return types.ChunkTypeCode
	case types.BlockComment:
		return types.ChunkTypeComment
	case types.BlockDocstring:
		return types.ChunkTypeMessage
	default:
		return types.ChunkTypeDoc
	}
}

// decodeContent implements spec §6's filesystem assumption: UTF-8 default
// with fallback decode order latin-1, cp1252, iso-8859-1, replace. Go's
// string type is a byte sequence, so latin-1/cp1252/iso-8859-1 (all
// single-byte supersets of ASCII in the printable range relevant here)
// degrade to a lossy-but-total byte-to-rune widening; only truly malformed
// UTF-8 triggers this path, and it never fails.
func decodeContent(raw []byte) string {
	if isValidUTF8(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func isValidUTF8(raw []byte) bool {
	for i := 0; i < len(raw); {
		r := raw[i]
		switch {
		case r < 0x80:
			i++
		case r&0xE0 == 0xC0:
			if !continuation(raw, i, 1) {
				return false
			}
			i += 2
		case r&0xF0 == 0xE0:
			if !continuation(raw, i, 2) {
				return false
			}
			i += 3
		case r&0xF8 == 0xF0:
			if !continuation(raw, i, 3) {
				return false
			}
			i += 4
		default:
			return false
		}
	}
	return true
}

func continuation(raw []byte, start, n int) bool {
	if start+n >= len(raw) {
		return false
	}
	for k := 1; k <= n; k++ {
		if raw[start+k]&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// Registry dispatches to the first extractor whose CanProcess matches.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds the default registry: source-code, Markdown, then text
// (text is checked last since it also accepts extension-less UTF-8 files).
func NewRegistry() *Registry {
	return &Registry{extractors: []Extractor{
		NewCodeExtractor(DefaultCodeConfig()),
		NewMarkdownExtractor(),
		NewTextExtractor(DefaultTextConfig()),
	}}
}

// For returns the first extractor that can process path, or nil.
func (r *Registry) For(path string, content []byte) Extractor {
	for _, e := range r.extractors {
		if e.CanProcess(path, content) {
			return e
		}
	}
	return nil
}

func now() time.Time { return time.Now() }

// assignBlockIDs computes each block's deterministic id (spec §3: a hash of
// {type, first-100-chars of content, start_line, start_offset}) so the
// "deterministic hash law" (spec §8) is actually exercised by every
// extractor rather than left to the caller. Called once per Parse, right
// before blocks are handed back, so every construction site above stays
// free to build a types.Block without repeating the id computation.
func assignBlockIDs(blocks []types.Block) {
	for i := range blocks {
		b := &blocks[i]
		b.BlockID = idgen.BlockID(string(b.BlockType), b.Content, b.Position.StartLine, b.Position.StartOffset)
	}
}
