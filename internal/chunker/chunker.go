// Package chunker implements C5 Chunker (spec §4.5): turns a FileStructure's
// blocks into size-bounded Chunks ready for the vector store. Grounded on
// the teacher's internal/indexing chunk-building step (pipeline.go's
// per-symbol chunk emission) generalized from symbol-table rows to the
// spec's structured/size-only split-and-merge model.
package chunker

import (
	"regexp"
	"strings"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/extract"
	"github.com/standardbeagle/ingestd/internal/idgen"
	"github.com/standardbeagle/ingestd/internal/types"
)

// Chunker implements spec §4.5's pipeline.
type Chunker struct {
	cfg config.Chunker
}

// New validates cfg's invariant (0 <= overlap < min <= max) and returns a Chunker.
func New(cfg config.Chunker) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

var (
	codeSplitPoint = regexp.MustCompile(`(?m)\n\s*(def |class |async def )`)
	blankSplitPoint = regexp.MustCompile(`\n\s*\n`)
	codeLikeHint    = regexp.MustCompile(`\bdef |\bclass |\bimport |\bfunction\b`)
	whitespaceRun   = regexp.MustCompile(`[ \t]+`)
	tripleNewline   = regexp.MustCompile(`\n{3,}`)
)

// Chunk builds the final, ordinal-assigned, quality-scored chunk list for
// one file's structure (spec §4.5 steps 1-6).
func (c *Chunker) Chunk(fs *types.FileStructure) []types.Chunk {
	blocks := c.filterBlocks(fs.Blocks)

	var chunks []types.Chunk
	if c.cfg.PreserveStructure {
		for _, b := range blocks {
			chunks = append(chunks, c.structuredChunksForBlock(fs.FilePath, b)...)
		}
		if c.cfg.MergeSmallBlocks {
			chunks = c.mergeSmallChunks(chunks)
		}
	} else {
		chunks = c.sizeOnlyChunks(fs.FilePath, blocks)
	}

	return c.postProcess(fs.FilePath, chunks)
}

// filterBlocks implements spec §4.5 step 1.
func (c *Chunker) filterBlocks(blocks []types.Block) []types.Block {
	out := make([]types.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.ImportanceScore < c.cfg.MinImportanceScore {
			continue
		}
		if b.ComplexityScore < c.cfg.MinComplexityScore {
			continue
		}
		if len(b.Content) < c.cfg.MinChunkSize && b.ImportanceScore < 0.7 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// structuredChunksForBlock implements spec §4.5 step 2 for a single block.
func (c *Chunker) structuredChunksForBlock(path string, b types.Block) []types.Chunk {
	if len(b.Content) <= c.cfg.MaxChunkSize {
		return []types.Chunk{c.chunkFromBlock(path, b, b.Content, 0, len(b.Content), false)}
	}

	if c.cfg.SplitLargeBlocks {
		return c.splitLargeBlock(path, b)
	}

	truncated := b.Content[:c.cfg.MaxChunkSize]
	ch := c.chunkFromBlock(path, b, truncated, 0, len(truncated), false)
	ch.Metadata = withTruncation(ch.Metadata, len(b.Content))
	return []types.Chunk{ch}
}

// splitLargeBlock implements spec §4.5 step 2's "split large block" rule.
func (c *Chunker) splitLargeBlock(path string, b types.Block) []types.Chunk {
	content := b.Content
	points := c.naturalSplitPoints(b)
	if len(points) == 0 {
		points = c.equiStridePoints(len(content))
	}

	var chunks []types.Chunk
	start := 0
	part := 0
	for _, split := range points {
		if split <= start {
			continue
		}
		end := min(split+c.cfg.OverlapSize, len(content))
		if end <= start {
			continue
		}
		sub := content[start:end]
		ch := c.chunkFromBlock(path, b, sub, start, end, true)
		ch.Metadata = withSplitMeta(ch.Metadata, part)
		chunks = append(chunks, ch)
		start = split
		part++
	}
	if start < len(content) {
		end := len(content)
		sub := content[start:end]
		ch := c.chunkFromBlock(path, b, sub, start, end, true)
		ch.Metadata = withSplitMeta(ch.Metadata, part)
		chunks = append(chunks, ch)
	}
	if len(chunks) == 0 {
		return []types.Chunk{c.chunkFromBlock(path, b, content[:c.cfg.MaxChunkSize], 0, c.cfg.MaxChunkSize, false)}
	}
	return chunks
}

// naturalSplitPoints implements spec §4.5 step 2's split-point search,
// retaining only points within [min_chunk_size, len-min_chunk_size].
func (c *Chunker) naturalSplitPoints(b types.Block) []int {
	var re *regexp.Regexp
	switch b.BlockType {
	case types.BlockFunction, types.BlockClass, types.BlockCode:
		re = codeSplitPoint
	default:
		re = blankSplitPoint
	}

	content := b.Content
	locs := re.FindAllStringIndex(content, -1)
	var points []int
	lo, hi := c.cfg.MinChunkSize, len(content)-c.cfg.MinChunkSize
	for _, loc := range locs {
		p := loc[0]
		if p >= lo && p <= hi {
			points = append(points, p)
		}
	}
	return points
}

// equiStridePoints is spec §4.5 step 2's fallback when no natural points exist.
func (c *Chunker) equiStridePoints(length int) []int {
	stride := c.cfg.MaxChunkSize - c.cfg.OverlapSize
	if stride <= 0 {
		stride = c.cfg.MaxChunkSize
	}
	var points []int
	for p := c.cfg.MaxChunkSize; p < length; p += stride {
		points = append(points, p)
	}
	return points
}

// sizeOnlyChunks implements spec §4.5 step 3: accumulate until the next
// block would exceed max_chunk_size, flush, no overlap.
func (c *Chunker) sizeOnlyChunks(path string, blocks []types.Block) []types.Chunk {
	var chunks []types.Chunk
	var buf strings.Builder
	var first, last types.Block
	haveFirst := false

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		ch := c.chunkFromBlock(path, first, buf.String(), first.Position.StartOffset, last.Position.EndOffset, false)
		ch.SourceLinesEnd = last.Position.EndLine
		chunks = append(chunks, ch)
		buf.Reset()
		haveFirst = false
	}

	for _, b := range blocks {
		if buf.Len() > 0 && buf.Len()+len(b.Content)+1 > c.cfg.MaxChunkSize {
			flush()
		}
		if !haveFirst {
			first = b
			haveFirst = true
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(b.Content)
		last = b
	}
	flush()
	return chunks
}

// mergeSmallChunks implements spec §4.5 step 2's small-chunk merging rule.
func (c *Chunker) mergeSmallChunks(chunks []types.Chunk) []types.Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := make([]types.Chunk, 0, len(chunks))
	cur := chunks[0]
	for i := 1; i < len(chunks); i++ {
		next := chunks[i]
		adjacent := cur.SourcePath == next.SourcePath && abs(cur.EndOffset-next.StartOffset) < 100
		combined := len(cur.Content) + len(next.Content)
		if adjacent && combined <= c.cfg.MaxChunkSize {
			cur = mergeTwo(cur, next)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

func mergeTwo(a, b types.Chunk) types.Chunk {
	merged := a
	merged.Content = a.Content + "\n" + b.Content
	merged.Text = merged.Content
	merged.EndOffset = b.EndOffset
	merged.SourceLinesEnd = b.SourceLinesEnd
	merged.QualityScore = (a.QualityScore + b.QualityScore) / 2
	merged.Cohesion = (a.Cohesion + b.Cohesion) / 2
	merged.Tags = unionTags(a.Tags, b.Tags)
	return merged
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, t := range append(append([]string{}, a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// chunkFromBlock builds a Chunk carrying the source block's type/language
// metadata, with quality/coverage scored per spec §4.5 step 5.
func (c *Chunker) chunkFromBlock(path string, b types.Block, content string, startOff, endOff int, isSplit bool) types.Chunk {
	coverage := float64(len(content)) / float64(c.cfg.MaxChunkSize)
	if coverage > 1.0 {
		coverage = 1.0
	}
	quality := (b.ImportanceScore + coverage) / 2
	if len(b.Content) > 0 {
		quality *= float64(len(content)) / float64(len(b.Content))
	}

	ch := types.Chunk{
		SourcePath:       path,
		Content:          content,
		Text:             normalize(content),
		StartOffset:      startOff,
		EndOffset:        endOff,
		SourceLinesStart: b.Position.StartLine,
		SourceLinesEnd:   b.Position.EndLine,
		ChunkType:        extract.ChunkTypeForBlock(path, b.BlockType),
		Status:           types.ChunkStatusNew,
		Language:         b.Language,
		Title:            b.Title,
		BlockType:        b.BlockType,
		QualityScore:     quality,
		Coverage:         coverage,
		Cohesion:         1.0,
		Tags:             append([]string{}, b.Tags...),
	}
	if isSplit && b.BlockID != "" {
		ch.Metadata = map[string]any{"parent_id": b.BlockID}
	}
	return ch
}

func withSplitMeta(meta map[string]any, part int) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["is_split_chunk"] = true
	meta["part_number"] = part
	return meta
}

func withTruncation(meta map[string]any, originalLen int) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["truncated"] = true
	meta["original_length"] = originalLen
	return meta
}

// postProcess implements spec §4.5 step 4: dense ordinal from 0, fresh
// chunk_id if missing, source_id = UUIDv5(abs path).
func (c *Chunker) postProcess(path string, chunks []types.Chunk) []types.Chunk {
	sourceID := idgen.SourceID(path)
	for i := range chunks {
		chunks[i].Ordinal = i
		if chunks[i].ChunkID == "" {
			chunks[i].ChunkID = idgen.NewChunkID()
		}
		chunks[i].SourceID = sourceID
	}
	return chunks
}

// normalize implements spec §4.5 step 6's text normalisation.
func normalize(content string) string {
	if codeLikeHint.MatchString(content) {
		return tripleNewline.ReplaceAllString(content, "\n\n")
	}
	collapsed := whitespaceRun.ReplaceAllString(content, " ")
	return tripleNewline.ReplaceAllString(collapsed, "\n\n")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
