// Package types defines the core data model shared across the ingestion
// pipeline (spec §3): FileInfo, DirectorySnapshot, Lock, Block,
// FileStructure, Chunk and FileRecord, plus the small value types that
// compose them. Keeping these in one leaf package avoids import cycles
// between scanner, extract, chunker, process and worker.
package types

import "time"

// FileStatus is the lifecycle state of a FileInfo (spec §3 FileInfo).
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusInProgress FileStatus = "in_progress"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
	FileStatusSkipped    FileStatus = "skipped"
)

// FileInfo is produced by the scanner from a filesystem stat and mutated
// only by the FileProcessor while the owning worker holds the directory lock.
type FileInfo struct {
	Path          string
	SizeBytes     int64
	ModTime       time.Time
	IsDir         bool
	Status        FileStatus
	LastProcessed *time.Time
	Metadata      map[string]any
}

// DirectorySnapshot is produced once per scan pass (spec §3 DirectorySnapshot).
type DirectorySnapshot struct {
	Path            string
	FileCount       int
	TotalSize       int64
	Supported       []string
	Unsupported     []string
	Subdirectories  []string
	ScanErrors      []string
	ProcessingStatus string
	LastScanTime    *time.Time
}

// LockStatus is the state of an on-disk directory lock (spec §3 Lock).
type LockStatus string

const (
	LockStatusActive   LockStatus = "active"
	LockStatusExpired  LockStatus = "expired"
	LockStatusOrphaned LockStatus = "orphaned"
	LockStatusReleased LockStatus = "released"
)

// Lock is the in-memory and on-disk-JSON representation of a directory lock.
type Lock struct {
	ProcessID      int            `json:"process_id"`
	CreatedAt      time.Time      `json:"created_at"`
	Directory      string         `json:"directory"`
	Status         LockStatus     `json:"status"`
	LockFilePath   string         `json:"lock_file_path"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// BlockType enumerates the semantic kinds an extractor can tag a Block with
// (spec §3 Block). It is a closed, total-function domain: the chunker's
// chunk-type mapping (spec §4.4 "Common invariants") switches on it
// exhaustively.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockListItem  BlockType = "list_item"
	BlockQuote     BlockType = "quote"
	BlockCode      BlockType = "code_block"
	BlockFunction  BlockType = "function"
	BlockClass     BlockType = "class"
	BlockMethod    BlockType = "method"
	BlockComment   BlockType = "comment"
	BlockDocstring BlockType = "docstring"
	BlockSection   BlockType = "section"
	BlockTitle     BlockType = "title"
	BlockTable     BlockType = "table"
	BlockImage     BlockType = "image"
	BlockLink      BlockType = "link"
	BlockMetadata  BlockType = "metadata"
	BlockImport    BlockType = "import"
	BlockVariable  BlockType = "variable"
)

// Position locates a Block within its source file.
type Position struct {
	StartLine   int
	EndLine     int
	StartOffset int
	EndOffset   int
}

// Block is a semantically coherent span of a source file produced by an
// extractor (spec §3 Block).
type Block struct {
	Content          string
	BlockType        BlockType
	Language         string
	Position         Position
	Level            int
	ParentID         string
	BlockID          string
	Title            string
	Metadata         map[string]any
	Tags             []string
	ComplexityScore  float64
	ImportanceScore  float64
}

// FileStructure is the output of a BlockExtractor for one file (spec §3 FileStructure).
type FileStructure struct {
	FilePath        string
	FileSize        int64
	FileHash        string // SHA-256 hex of raw bytes
	ModifiedAt      time.Time
	Blocks          []Block
	Language        string
	Encoding        string
	FilterName      string
	FilterVersion   string
	ParsedAt        time.Time
	ProcessingTime  time.Duration
	TotalCharacters int
}

// ChunkType is the vector-store-facing classification of a Chunk (spec §3/§4.4).
type ChunkType string

const (
	ChunkTypeCode    ChunkType = "CODE_BLOCK"
	ChunkTypeComment ChunkType = "COMMENT"
	ChunkTypeMessage ChunkType = "MESSAGE"
	ChunkTypeDoc     ChunkType = "DOC_BLOCK"
	ChunkTypeDraft   ChunkType = "DRAFT"
)

// ChunkStatus is always NEW at emission time (spec §3 Chunk invariant).
type ChunkStatus string

const ChunkStatusNew ChunkStatus = "NEW"

// Chunk is a size-bounded unit emitted to the vector store (spec §3 Chunk).
type Chunk struct {
	ChunkID          string
	SourceID         string
	SourcePath       string
	Content          string
	Text             string // normalised form, stored alongside Content/body
	Ordinal          int
	StartOffset      int
	EndOffset        int
	SourceLinesStart int
	SourceLinesEnd   int
	ChunkType        ChunkType
	Status           ChunkStatus
	Language         string
	Category         string
	Title            string
	QualityScore     float64
	Coverage         float64
	Cohesion         float64
	BlockType        BlockType
	Tags             []string
	Metadata         map[string]any
}

// RecordStatus is the metadata-store lifecycle state of a FileRecord (spec §6).
type RecordStatus string

const (
	RecordPending    RecordStatus = "PENDING"
	RecordInProgress RecordStatus = "IN_PROGRESS"
	RecordCompleted  RecordStatus = "COMPLETED"
	RecordFailed     RecordStatus = "FAILED"
	RecordSkipped    RecordStatus = "SKIPPED"
)

// FileRecord is one row per processed file in the metadata store (spec §3/§6).
type FileRecord struct {
	RecordID      string
	SourceID      string
	Path          string
	SizeBytes     int64
	ModTime       time.Time
	Status        RecordStatus
	ChunksCreated int
	LastError     string
	UpdatedAt     time.Time
}
