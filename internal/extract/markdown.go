package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/standardbeagle/ingestd/internal/types"
)

var (
	mdHeading   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	mdListItem  = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+(.*)$`)
	mdQuote     = regexp.MustCompile(`^\s*>\s?(.*)$`)
	mdFenceOpen = regexp.MustCompile("^```\\s*([a-zA-Z0-9_+-]*)")
	mdTableRow  = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	mdLink      = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	mdImage     = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
)

// MarkdownExtractor implements spec §4.4's Markdown extractor.
type MarkdownExtractor struct{}

// NewMarkdownExtractor constructs a MarkdownExtractor.
func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

func (e *MarkdownExtractor) CanProcess(path string, content []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// Parse walks the document line by line, grouping headings, paragraphs,
// lists, block-quotes, fenced code and tables into blocks (spec §4.4).
func (e *MarkdownExtractor) Parse(path string, content []byte) (*types.FileStructure, error) {
	start := now()
	text := decodeContent(content)
	lines := strings.Split(text, "\n")

	var blocks []types.Block

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			i++

		case mdFenceOpen.MatchString(trimmed):
			lang := mdFenceOpen.FindStringSubmatch(trimmed)[1]
			startLine := i + 1
			j := i + 1
			var body []string
			for j < len(lines) && strings.TrimSpace(lines[j]) != "```" {
				body = append(body, lines[j])
				j++
			}
			endLine := j + 1
			if j < len(lines) {
				j++ // consume closing fence
			}
			blocks = append(blocks, types.Block{
				Content:   strings.Join(body, "\n"),
				BlockType: types.BlockCode,
				Language:  lang,
				Position:  types.Position{StartLine: startLine, EndLine: endLine},
			})
			i = j

		case mdHeading.MatchString(trimmed):
			m := mdHeading.FindStringSubmatch(trimmed)
			level := len(m[1])
			blocks = append(blocks, withLinkMetadata(types.Block{
				Content:   m[2],
				BlockType: types.BlockHeading,
				Level:     level,
				Title:     m[2],
				Position:  types.Position{StartLine: i + 1, EndLine: i + 1},
			}))
			i++

		case mdTableRow.MatchString(line):
			startLine := i
			var rows []string
			for i < len(lines) && mdTableRow.MatchString(lines[i]) {
				rows = append(rows, lines[i])
				i++
			}
			blocks = append(blocks, types.Block{
				Content:   strings.Join(rows, "\n"),
				BlockType: types.BlockTable,
				Position:  types.Position{StartLine: startLine + 1, EndLine: i},
				Metadata:  map[string]any{"row_count": len(rows)},
			})

		case mdQuote.MatchString(line):
			startLine := i
			var body []string
			for i < len(lines) && mdQuote.MatchString(lines[i]) {
				body = append(body, mdQuote.FindStringSubmatch(lines[i])[1])
				i++
			}
			blocks = append(blocks, withLinkMetadata(types.Block{
				Content:   strings.Join(body, "\n"),
				BlockType: types.BlockQuote,
				Position:  types.Position{StartLine: startLine + 1, EndLine: i},
			}))

		case mdListItem.MatchString(line):
			startLine := i
			var body []string
			for i < len(lines) && (mdListItem.MatchString(lines[i]) || (strings.HasPrefix(lines[i], "  ") && strings.TrimSpace(lines[i]) != "")) {
				body = append(body, lines[i])
				i++
			}
			blocks = append(blocks, withLinkMetadata(types.Block{
				Content:   strings.Join(body, "\n"),
				BlockType: types.BlockListItem,
				Position:  types.Position{StartLine: startLine + 1, EndLine: i},
			}))

		default:
			startLine := i
			var body []string
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if t == "" || mdHeading.MatchString(t) || mdFenceOpen.MatchString(t) || mdQuote.MatchString(lines[i]) || mdListItem.MatchString(lines[i]) || mdTableRow.MatchString(lines[i]) {
					break
				}
				body = append(body, lines[i])
				i++
			}
			content := strings.TrimSpace(strings.Join(body, "\n"))
			if content != "" {
				blocks = append(blocks, withLinkMetadata(types.Block{
					Content:   content,
					BlockType: types.BlockParagraph,
					Position:  types.Position{StartLine: startLine + 1, EndLine: i},
				}))
			}
		}
	}

	assignBlockIDs(blocks)

	return &types.FileStructure{
		FilePath:        path,
		FileSize:        int64(len(content)),
		Blocks:          blocks,
		Language:        "markdown",
		Encoding:        "utf-8",
		FilterName:      "markdown_extractor",
		FilterVersion:   "1.0",
		ParsedAt:        now(),
		ProcessingTime:  time.Since(start),
		TotalCharacters: len(text),
	}, nil
}

// withLinkMetadata scans a block's content for markdown links/images and
// attaches any found into block.Metadata (spec §4.4: "attaches link/image
// occurrences into metadata").
func withLinkMetadata(b types.Block) types.Block {
	var links, images []map[string]any
	for _, m := range mdImage.FindAllStringSubmatch(b.Content, -1) {
		images = append(images, map[string]any{"alt": m[1], "src": m[2]})
	}
	withoutImages := mdImage.ReplaceAllString(b.Content, "")
	for _, m := range mdLink.FindAllStringSubmatch(withoutImages, -1) {
		links = append(links, map[string]any{"text": m[1], "href": m[2]})
	}
	if len(links) == 0 && len(images) == 0 {
		return b
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	if len(links) > 0 {
		b.Metadata["links"] = links
	}
	if len(images) > 0 {
		b.Metadata["images"] = images
	}
	return b
}
