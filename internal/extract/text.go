package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/standardbeagle/ingestd/internal/types"
)

// TextConfig configures the text extractor (spec §4.4 "Text extractor").
type TextConfig struct {
	MinParagraphLength int
	MaxParagraphLength int // paragraphs longer than this are kept anyway; split later by the chunker
}

// DefaultTextConfig keeps paragraphs of at least 20 characters. The max
// matches the chunker's default max_chunk_size (2000); the min is well below
// the chunker's default min_chunk_size (200), so short paragraphs survive
// extraction and the chunker's own block filter (spec §4.5 step 1) decides.
func DefaultTextConfig() TextConfig {
	return TextConfig{MinParagraphLength: 20, MaxParagraphLength: 2000}
}

var (
	textExtensions  = map[string]bool{".txt": true, ".text": true, ".log": true, ".readme": true}
	blankLineSplit  = regexp.MustCompile(`\n[ \t]*\n+`)
	underlineEquals = regexp.MustCompile(`^=+$`)
	underlineDashes = regexp.MustCompile(`^-+$`)
	allCapsLine     = regexp.MustCompile(`^[A-Z0-9 _\-:]+$`)
	importanceWords = []string{"important", "note", "warning", "attention", "todo", "fixme"}
)

// TextExtractor implements spec §4.4's text extractor.
type TextExtractor struct {
	cfg TextConfig
}

// NewTextExtractor constructs a TextExtractor.
func NewTextExtractor(cfg TextConfig) *TextExtractor { return &TextExtractor{cfg: cfg} }

// CanProcess accepts the text extensions, plus any extension-less file
// whose first kilobyte decodes as UTF-8 (spec §4.4).
func (e *TextExtractor) CanProcess(path string, content []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		return true
	}
	if ext != "" {
		return false
	}
	if content == nil {
		return true // no content to sniff; extension-less path is its remit
	}
	probe := content
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return isValidUTF8(probe)
}

// Parse implements spec §4.4's text-extraction procedure.
func (e *TextExtractor) Parse(path string, content []byte) (*types.FileStructure, error) {
	start := now()
	text := decodeContent(content)

	paragraphs := blankLineSplit.Split(text, -1)

	var blocks []types.Block
	offset := 0
	line := 1
	for _, para := range paragraphs {
		paraStart := strings.Index(text[offset:], para)
		if paraStart < 0 {
			paraStart = 0
		}
		absStart := offset + paraStart
		startLine := line + strings.Count(text[offset:absStart], "\n")
		endLine := startLine + strings.Count(para, "\n")

		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			offset = absStart + len(para)
			line = endLine
			continue
		}

		if !e.keep(trimmed) {
			offset = absStart + len(para)
			line = endLine
			continue
		}

		bt, level := classifyParagraph(trimmed)
		blocks = append(blocks, types.Block{
			Content:         trimmed,
			BlockType:       bt,
			Language:        "text",
			Position:        types.Position{StartLine: startLine, EndLine: endLine, StartOffset: absStart, EndOffset: absStart + len(para)},
			Level:           level,
			ImportanceScore: importanceScore(trimmed),
		})

		offset = absStart + len(para)
		line = endLine
	}

	assignBlockIDs(blocks)

	return &types.FileStructure{
		FilePath:        path,
		FileSize:        int64(len(content)),
		Blocks:          blocks,
		Language:        "text",
		Encoding:        "utf-8",
		FilterName:      "text_extractor",
		FilterVersion:   "1.0",
		ParsedAt:        now(),
		ProcessingTime:  time.Since(start),
		TotalCharacters: len(text),
	}, nil
}

// minAlnumDensity is the floor below which a paragraph is considered noise
// rather than prose (spec §4.4: "alphanumeric density is < 50% of minimum").
const minAlnumDensity = 0.5

// keep implements spec §4.4's text filter rules.
func (e *TextExtractor) keep(paragraph string) bool {
	if alnumDensity(paragraph) < minAlnumDensity {
		return false
	}
	if len(paragraph) >= e.cfg.MinParagraphLength {
		return true
	}
	return len(paragraph) > e.cfg.MaxParagraphLength
}

func alnumDensity(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	count := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			count++
		}
	}
	return float64(count) / float64(len([]rune(s)))
}

// classifyParagraph applies spec §4.4's lightweight shape rules, also
// recognising underlined headings (the line preceding an all-= or all--
// line) and ALL-CAPS headings.
func classifyParagraph(paragraph string) (types.BlockType, int) {
	lines := strings.Split(paragraph, "\n")

	if len(lines) >= 2 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if underlineEquals.MatchString(last) {
			return types.BlockHeading, 1
		}
		if underlineDashes.MatchString(last) {
			return types.BlockHeading, 2
		}
	}
	if len(lines) == 1 {
		trimmed := strings.TrimSpace(lines[0])
		if len(trimmed) > 5 && allCapsLine.MatchString(trimmed) && strings.ToUpper(trimmed) == trimmed {
			return types.BlockHeading, 1
		}
	}

	first := strings.TrimSpace(lines[0])
	switch {
	case strings.HasPrefix(first, "- ") || strings.HasPrefix(first, "* ") || isNumberedListItem(first):
		return types.BlockListItem, 0
	case strings.HasPrefix(first, ">"):
		return types.BlockQuote, 0
	case len(lines) == 1 && len(first) < 80 && !strings.HasSuffix(first, "."):
		return types.BlockTitle, 0
	default:
		return types.BlockParagraph, 0
	}
}

func isNumberedListItem(s string) bool {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')')
}

// importanceScore implements spec §4.4's scoring for the text extractor.
func importanceScore(paragraph string) float64 {
	score := 0.5
	if len(paragraph) > 200 {
		score += 0.1
	}
	if strings.ContainsAny(paragraph, "?!") {
		score += 0.1
	}
	lower := strings.ToLower(paragraph)
	for _, kw := range importanceWords {
		if strings.Contains(lower, kw) {
			score += 0.1
			break
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
