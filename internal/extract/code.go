// Source-code block extraction (spec §4.4 "Source-code extractor"),
// grounded on the teacher's internal/parser package: the same tree-sitter
// setup idiom (one *tree_sitter.Parser per extension, panic-recovery around
// the CGO parse call, NewLanguage(grammar.Language())) generalized from
// symbol-table extraction to the spec's function/class/method block model.
// Only the four grammars the pack confidently documents node-kind tables
// for are wired (see SPEC_FULL.md "Dropped teacher dependencies").
package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/types"
)

// CodeConfig configures the source-code extractor (spec §4.4).
type CodeConfig struct {
	IncludeImports      bool
	IncludeDocstrings   bool
	IncludeComments     bool
	MinFunctionLines    int
	ComplexityThreshold int
}

// DefaultCodeConfig matches spec §4.4's stated defaults.
func DefaultCodeConfig() CodeConfig {
	return CodeConfig{IncludeImports: true, IncludeDocstrings: true, IncludeComments: true, MinFunctionLines: 3, ComplexityThreshold: 10}
}

// langProfile is the per-language node-kind table the walker consults.
type langProfile struct {
	name            string
	extensions      []string
	grammar         func() *tree_sitter.Language
	functionKinds   map[string]bool
	classKinds      map[string]bool
	methodBodyField string // field name on a class node holding its body, for nested method lookup
	importKinds     map[string]bool
	commentKind     string
	stringKind      string // docstring candidate node kind
	complexityKinds map[string]bool
	boolOpKinds     map[string]bool // binary/boolean-operator nodes; counted when operator text is && / and / || / or
	nameField       string
	mainCheckKinds  map[string]bool // top-level statement kinds that can be an `if __name__ == "__main__"` guard
}

var profiles = map[string]*langProfile{
	".go": {
		name:          "go",
		extensions:    []string{".go"},
		grammar:       func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_go.Language()) },
		functionKinds: set("function_declaration"),
		classKinds:    set("type_declaration"),
		importKinds:   set("import_declaration"),
		commentKind:   "comment",
		stringKind:    "interpreted_string_literal",
		complexityKinds: set("if_statement", "for_statement", "expression_switch_statement",
			"type_switch_statement", "select_statement", "communication_case", "expression_case"),
		boolOpKinds: set("binary_expression"),
		nameField:   "name",
	},
	".py": {
		name:            "python",
		extensions:      []string{".py"},
		grammar:         func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_python.Language()) },
		functionKinds:   set("function_definition"),
		classKinds:      set("class_definition"),
		methodBodyField: "body",
		importKinds:     set("import_statement", "import_from_statement"),
		commentKind:     "comment",
		stringKind:      "string",
		complexityKinds: set("if_statement", "while_statement", "for_statement", "except_clause", "with_statement"),
		boolOpKinds:     set("boolean_operator"),
		nameField:       "name",
		mainCheckKinds:  set("if_statement"),
	},
	".js": {
		name:            "javascript",
		extensions:      []string{".js", ".jsx"},
		grammar:         func() *tree_sitter.Language { return tree_sitter.NewLanguage(tree_sitter_javascript.Language()) },
		functionKinds:   set("function_declaration", "generator_function_declaration"),
		classKinds:      set("class_declaration"),
		methodBodyField: "body",
		importKinds:     set("import_statement"),
		commentKind:     "comment",
		stringKind:      "string",
		complexityKinds: set("if_statement", "while_statement", "for_statement", "for_in_statement", "catch_clause"),
		boolOpKinds:     set("binary_expression"),
		nameField:       "name",
	},
	".ts": {
		name:       "typescript",
		extensions: []string{".ts", ".tsx"},
		grammar: func() *tree_sitter.Language {
			return tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		},
		functionKinds:   set("function_declaration", "generator_function_declaration"),
		classKinds:      set("class_declaration"),
		methodBodyField: "body",
		importKinds:     set("import_statement"),
		commentKind:     "comment",
		stringKind:      "string",
		complexityKinds: set("if_statement", "while_statement", "for_statement", "for_in_statement", "catch_clause"),
		boolOpKinds:     set("binary_expression"),
		nameField:       "name",
	},
}

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

func profileFor(path string) *langProfile {
	ext := strings.ToLower(filepath.Ext(path))
	if p, ok := profiles[ext]; ok {
		return p
	}
	switch ext {
	case ".jsx":
		return profiles[".js"]
	case ".tsx":
		return profiles[".ts"]
	}
	return nil
}

// CodeExtractor implements spec §4.4's source-code extractor.
type CodeExtractor struct {
	cfg     CodeConfig
	parsers map[string]*tree_sitter.Parser
}

// NewCodeExtractor constructs a CodeExtractor with lazily-built parsers,
// one per supported language, matching the teacher's per-extension parser
// map in internal/parser/parser.go.
func NewCodeExtractor(cfg CodeConfig) *CodeExtractor {
	return &CodeExtractor{cfg: cfg, parsers: make(map[string]*tree_sitter.Parser)}
}

func (e *CodeExtractor) CanProcess(path string, content []byte) bool {
	return profileFor(path) != nil
}

func (e *CodeExtractor) parserFor(p *langProfile) *tree_sitter.Parser {
	if existing, ok := e.parsers[p.name]; ok {
		return existing
	}
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(p.grammar()); err != nil {
		return nil
	}
	e.parsers[p.name] = parser
	return parser
}

// Parse implements spec §4.4's source-code extraction procedure: parse to
// AST, fall back to a regex scanner on failure, walk functions/classes/
// methods/imports/comments/docstring/main-guard, score complexity and
// importance, drop short unimportant functions, sort by start_line.
func (e *CodeExtractor) Parse(path string, content []byte) (*types.FileStructure, error) {
	start := now()
	profile := profileFor(path)
	text := decodeContent(content)

	var blocks []types.Block
	usedFallback := false

	if profile != nil {
		if parser := e.parserFor(profile); parser != nil {
			blocks = e.parseWithTreeSitter(parser, profile, content, path)
		}
	}
	if blocks == nil {
		blocks = e.parseWithFallback(text)
		usedFallback = true
	}

	sortBlocksByLine(blocks)
	assignBlockIDs(blocks)

	lang := "unknown"
	if profile != nil {
		lang = profile.name
	}
	fs := &types.FileStructure{
		FilePath:        path,
		FileSize:        int64(len(content)),
		Blocks:          blocks,
		Language:        lang,
		Encoding:        "utf-8",
		FilterName:      "code_extractor",
		FilterVersion:   "1.0",
		ParsedAt:        now(),
		ProcessingTime:  time.Since(start),
		TotalCharacters: len(text),
	}
	if usedFallback {
		fs.FilterVersion = "1.0-fallback"
	}
	return fs, nil
}

func sortBlocksByLine(blocks []types.Block) {
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && blocks[j-1].Position.StartLine > blocks[j].Position.StartLine; j-- {
			blocks[j-1], blocks[j] = blocks[j], blocks[j-1]
		}
	}
}

// parseWithTreeSitter builds the tree and recovers from any CGO panic,
// matching the teacher's defensive-copy + recover pattern around
// parser.Parse (internal/parser/parser.go ParseFileEnhancedWithContext).
func (e *CodeExtractor) parseWithTreeSitter(parser *tree_sitter.Parser, profile *langProfile, content []byte, path string) (blocks []types.Block) {
	defer func() {
		if r := recover(); r != nil {
			debug.LogIndexing("code extractor: tree-sitter panic on %s: %v", path, r)
			blocks = nil
		}
	}()

	buf := make([]byte, len(content))
	copy(buf, content)

	tree := parser.Parse(buf, nil)
	if tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &walker{profile: profile, cfg: e.cfg, content: buf}
	return w.walkModule(root)
}

type walker struct {
	profile *langProfile
	cfg     CodeConfig
	content []byte
}

func (w *walker) text(n *tree_sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) line(n *tree_sitter.Node) (start, end int) {
	return int(n.StartPosition().Row) + 1, int(n.EndPosition().Row) + 1
}

// walkModule implements spec §4.4 steps 2-7 for a parsed module/file.
func (w *walker) walkModule(root *tree_sitter.Node) []types.Block {
	blocks := []types.Block{} // non-nil: an empty result is a successful parse, not a failure

	if w.cfg.IncludeDocstrings {
		if doc := w.moduleDocstring(root); doc != nil {
			blocks = append(blocks, *doc)
		}
	}

	var pendingComments []*tree_sitter.Node

	count := root.ChildCount()
	for i := uint(0); i < count; i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		kind := child.Kind()

		if kind == w.profile.commentKind {
			pendingComments = append(pendingComments, child)
			continue
		}
		if b := w.flushComments(pendingComments); b != nil {
			blocks = append(blocks, *b)
		}
		pendingComments = nil

		switch {
		case w.profile.functionKinds[kind]:
			if b := w.functionBlock(child, 0); b != nil {
				blocks = append(blocks, *b)
			}
		case w.profile.classKinds[kind]:
			blocks = append(blocks, w.classBlocks(child)...)
		case w.profile.importKinds[kind] && w.cfg.IncludeImports:
			blocks = append(blocks, w.importBlock(child))
		case w.profile.mainCheckKinds[kind] && w.isMainGuard(child):
			startLine, endLine := w.line(child)
			blocks = append(blocks, types.Block{
				Content:   w.text(child),
				BlockType: types.BlockCode,
				Language:  w.profile.name,
				Position:  types.Position{StartLine: startLine, EndLine: endLine, StartOffset: int(child.StartByte()), EndOffset: int(child.EndByte())},
				Title:     `if __name__ == "__main__"`,
			})
		}
	}
	if b := w.flushComments(pendingComments); b != nil {
		blocks = append(blocks, *b)
	}

	return blocks
}

// flushComments implements "consecutive comment lines (>= 2) form a
// comment block; shebangs excluded" (spec §4.4 step 7).
func (w *walker) flushComments(pending []*tree_sitter.Node) *types.Block {
	if !w.cfg.IncludeComments || len(pending) < 2 {
		return nil
	}
	var lines []string
	for _, n := range pending {
		t := w.text(n)
		if strings.HasPrefix(t, "#!") {
			continue
		}
		lines = append(lines, t)
	}
	if len(lines) < 2 {
		return nil
	}
	startLine, _ := w.line(pending[0])
	_, endLine := w.line(pending[len(pending)-1])
	return &types.Block{
		Content:   strings.Join(lines, "\n"),
		BlockType: types.BlockComment,
		Language:  w.profile.name,
		Position:  types.Position{StartLine: startLine, EndLine: endLine},
	}
}

func (w *walker) importBlock(n *tree_sitter.Node) types.Block {
	startLine, endLine := w.line(n)
	return types.Block{
		Content:   w.text(n),
		BlockType: types.BlockImport,
		Language:  w.profile.name,
		Position:  types.Position{StartLine: startLine, EndLine: endLine, StartOffset: int(n.StartByte()), EndOffset: int(n.EndByte())},
	}
}

// moduleDocstring recognises a module-level docstring: the first
// expression_statement in the module whose sole child is a string literal.
func (w *walker) moduleDocstring(root *tree_sitter.Node) *types.Block {
	if w.profile.name != "python" {
		return nil
	}
	count := root.ChildCount()
	for i := uint(0); i < count; i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == "comment" {
			continue
		}
		if child.Kind() != "expression_statement" {
			return nil
		}
		if child.ChildCount() == 0 {
			return nil
		}
		inner := child.Child(0)
		if inner == nil || inner.Kind() != w.profile.stringKind {
			return nil
		}
		startLine, endLine := w.line(child)
		return &types.Block{
			Content:   strings.Trim(w.text(inner), "\"'"),
			BlockType: types.BlockDocstring,
			Language:  w.profile.name,
			Position:  types.Position{StartLine: startLine, EndLine: endLine},
		}
	}
	return nil
}

func (w *walker) isMainGuard(n *tree_sitter.Node) bool {
	text := w.text(n)
	firstLine := strings.SplitN(text, "\n", 2)[0]
	return strings.Contains(firstLine, "__name__") && strings.Contains(firstLine, "__main__")
}

// functionBlock implements spec §4.4 steps 3-6 for one function node.
func (w *walker) functionBlock(n *tree_sitter.Node, level int) *types.Block {
	startLine, endLine := w.line(n)
	name := w.nodeName(n)
	complexity := w.complexity(n)
	isAsync := strings.HasPrefix(strings.TrimSpace(w.text(n)), "async")
	hasAnnotation := strings.Contains(w.signature(n), ":") || strings.Contains(w.signature(n), "->")
	decorated := w.isDecorated(n)

	importance := 0.5
	if name == "main" {
		importance += 0.3
	}
	if name != "" && !strings.HasPrefix(name, "_") {
		importance += 0.1
	}
	if decorated {
		importance += 0.1
	}
	if complexity > 5 {
		importance += 0.1
	}
	if hasAnnotation {
		importance += 0.05
	}
	if importance > 1.0 {
		importance = 1.0
	}

	lineSpan := endLine - startLine
	if lineSpan < w.cfg.MinFunctionLines && importance < 0.7 {
		return nil // spec §4.4 step 6: short unimportant functions are dropped
	}

	bt := types.BlockFunction
	if level > 0 {
		bt = types.BlockMethod
	}

	_ = isAsync // captured in metadata below
	return &types.Block{
		Content:         w.text(n),
		BlockType:       bt,
		Language:        w.profile.name,
		Position:        types.Position{StartLine: startLine, EndLine: endLine, StartOffset: int(n.StartByte()), EndOffset: int(n.EndByte())},
		Level:           level,
		Title:           name,
		ComplexityScore: float64(complexity),
		ImportanceScore: importance,
		Metadata:        map[string]any{"is_async": isAsync, "decorated": decorated},
	}
}

// classBlocks implements spec §4.4 step 3: a class yields its own block
// plus one block per method in its body (level >= 1).
func (w *walker) classBlocks(n *tree_sitter.Node) []types.Block {
	startLine, endLine := w.line(n)
	name := w.nodeName(n)
	out := []types.Block{{
		Content:         w.text(n),
		BlockType:       types.BlockClass,
		Language:        w.profile.name,
		Position:        types.Position{StartLine: startLine, EndLine: endLine, StartOffset: int(n.StartByte()), EndOffset: int(n.EndByte())},
		Title:           name,
		ComplexityScore: float64(w.complexity(n)),
		ImportanceScore: 0.5,
	}}

	body := w.childByField(n, w.profile.methodBodyField)
	if body == nil {
		return out
	}
	count := body.ChildCount()
	for i := uint(0); i < count; i++ {
		child := body.Child(i)
		if child == nil {
			continue
		}
		if w.profile.functionKinds[child.Kind()] || child.Kind() == "method_definition" {
			if b := w.functionBlock(child, 1); b != nil {
				b.ParentID = name
				out = append(out, *b)
			}
		}
	}
	return out
}

func (w *walker) childByField(n *tree_sitter.Node, field string) *tree_sitter.Node {
	if field == "" {
		return nil
	}
	return n.ChildByFieldName(field)
}

func (w *walker) nodeName(n *tree_sitter.Node) string {
	if nameNode := n.ChildByFieldName(w.profile.nameField); nameNode != nil {
		return w.text(nameNode)
	}
	return ""
}

func (w *walker) signature(n *tree_sitter.Node) string {
	text := w.text(n)
	if idx := strings.IndexAny(text, "\n"); idx >= 0 {
		return text[:idx]
	}
	return text
}

func (w *walker) isDecorated(n *tree_sitter.Node) bool {
	parent := n.Parent()
	if parent == nil || parent.Kind() != "decorated_definition" {
		return false
	}
	return true
}

// complexity implements spec §4.4 step 4: base 1, +1 per control-flow or
// boolean-operator node within the subtree.
func (w *walker) complexity(n *tree_sitter.Node) int {
	score := 1
	var visit func(node *tree_sitter.Node)
	visit = func(node *tree_sitter.Node) {
		if node == nil {
			return
		}
		kind := node.Kind()
		if w.profile.complexityKinds[kind] {
			score++
		}
		if w.profile.boolOpKinds[kind] {
			op := w.operatorText(node)
			if op == "&&" || op == "||" || op == "and" || op == "or" {
				score++
			}
		}
		count := node.ChildCount()
		for i := uint(0); i < count; i++ {
			visit(node.Child(i))
		}
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		visit(n.Child(i))
	}
	return score
}

func (w *walker) operatorText(n *tree_sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return w.text(op)
	}
	if n.ChildCount() >= 2 {
		if mid := n.Child(1); mid != nil {
			return w.text(mid)
		}
	}
	return ""
}

// Fallback regex scanner for when tree-sitter parsing fails (spec §4.4
// step 1): locates def/async def/class by start-of-line pattern, and
// block ends by indentation descent (Python-family convention).
var (
	pyDefRe   = regexp.MustCompile(`^(\s*)(async\s+def|def|class)\s+(\w+)`)
	cFuncRe   = regexp.MustCompile(`^\s*(func|function|class)\s+(\w+)`)
)

func (e *CodeExtractor) parseWithFallback(text string) []types.Block {
	lines := strings.Split(text, "\n")
	var blocks []types.Block

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			kw, name := m[2], m[3]
			end := i
			for j := i + 1; j < len(lines); j++ {
				if strings.TrimSpace(lines[j]) == "" {
					end = j
					continue
				}
				curIndent := len(lines[j]) - len(strings.TrimLeft(lines[j], " \t"))
				if curIndent <= indent {
					break
				}
				end = j
			}
			bt := types.BlockFunction
			if strings.HasPrefix(kw, "class") {
				bt = types.BlockClass
			}
			blocks = append(blocks, types.Block{
				Content:         strings.Join(lines[i:end+1], "\n"),
				BlockType:       bt,
				Title:           name,
				Position:        types.Position{StartLine: i + 1, EndLine: end + 1},
				ImportanceScore: 0.5,
			})
			continue
		}
		if m := cFuncRe.FindStringSubmatch(line); m != nil {
			bt := types.BlockFunction
			if m[1] == "class" {
				bt = types.BlockClass
			}
			blocks = append(blocks, types.Block{
				Content:         line,
				BlockType:       bt,
				Title:           m[2],
				Position:        types.Position{StartLine: i + 1, EndLine: i + 1},
				ImportanceScore: 0.5,
			})
		}
	}
	return blocks
}
