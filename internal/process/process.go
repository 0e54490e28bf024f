// Package process implements C6 FileProcessor (spec §4.6): the per-file
// extract -> chunk -> commit pipeline, with atomic-with-rollback chunk
// commit and per-file exception isolation in batch mode. Grounded on the
// teacher's internal/indexing pipeline.go (per-file processing step,
// per-file error isolation in ProcessFiles) generalized from symbol
// indexing to chunk persistence.
package process

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/standardbeagle/ingestd/internal/chunker"
	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/errtypes"
	"github.com/standardbeagle/ingestd/internal/extract"
	"github.com/standardbeagle/ingestd/internal/idgen"
	"github.com/standardbeagle/ingestd/internal/store"
	"github.com/standardbeagle/ingestd/internal/types"
)

// Status mirrors spec §4.6's processing_status enum.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Result is the outcome of processing a single file (spec §4.6).
type Result struct {
	Path                   string
	Status                 Status
	ProcessingTimeSeconds  float64
	ChunksCreated          int
	Blocks                 []types.Block
	ErrorMessage           string
}

// Processor implements FileProcessor.Process/ProcessBatch.
type Processor struct {
	registry *extract.Registry
	chunks   *chunker.Chunker
	vectors  store.VectorStore
	meta     store.MetadataStore
}

// New wires a Processor from its three collaborators (spec §4.6).
func New(registry *extract.Registry, chunks *chunker.Chunker, vectors store.VectorStore, meta store.MetadataStore) *Processor {
	return &Processor{registry: registry, chunks: chunks, vectors: vectors, meta: meta}
}

// Process implements spec §4.6's seven-step procedure for one file.
func (p *Processor) Process(ctx context.Context, path string) Result {
	start := time.Now()
	procID := fmt.Sprintf("proc-%d-%d", os.Getpid(), start.UnixNano())
	debug.LogIndexing("process[%s]: starting %s", procID, path)

	res, err := p.run(ctx, path)
	res.ProcessingTimeSeconds = time.Since(start).Seconds()

	if err != nil {
		debug.LogError("process[%s]: %s failed: %v", procID, path, err)
		return p.failureRecord(ctx, path, res, err)
	}
	return res
}

func (p *Processor) run(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Path: path}, errtypes.New(errtypes.KindFilesystemMissing, "process.stat", err).WithPath(path)
		}
		return Result{Path: path}, errtypes.New(errtypes.KindUnknown, "process.stat", err).WithPath(path)
	}
	if !info.Mode().IsRegular() {
		return Result{Path: path}, errtypes.New(errtypes.KindFilesystemMissing, "process.stat", fmt.Errorf("%s is not a regular file", path)).WithPath(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path}, errtypes.New(errtypes.KindUnknown, "process.read", err).WithPath(path)
	}

	extractor := p.registry.For(path, content)
	if extractor == nil {
		return Result{Path: path}, errtypes.New(errtypes.KindUnsupportedExt, "process.dispatch", fmt.Errorf("no extractor for %s", path)).WithPath(path)
	}

	fs, err := extractor.Parse(path, content)
	if err != nil {
		return Result{Path: path}, errtypes.New(errtypes.KindParseFailure, "process.parse", err).WithPath(path)
	}

	if len(fs.Blocks) == 0 {
		rec := p.successRecord(path, info, 0)
		if err := p.meta.UpsertFileRecord(ctx, rec); err != nil {
			debug.LogWarn("process: metadata upsert failed for %s: %v", path, err)
		}
		return Result{Path: path, Status: StatusCompleted, ChunksCreated: 0, Blocks: fs.Blocks}, nil
	}

	chunks := p.chunks.Chunk(fs)
	if len(chunks) == 0 {
		rec := p.successRecord(path, info, 0)
		if err := p.meta.UpsertFileRecord(ctx, rec); err != nil {
			debug.LogWarn("process: metadata upsert failed for %s: %v", path, err)
		}
		return Result{Path: path, Status: StatusCompleted, ChunksCreated: 0, Blocks: fs.Blocks}, nil
	}

	committed, err := p.commitChunks(ctx, chunks)
	if err != nil {
		p.rollback(ctx, committed)
		return Result{Path: path, Blocks: fs.Blocks}, err
	}

	rec := p.successRecord(path, info, len(chunks))
	rec.SourceID = idgen.SourceID(path)
	if err := p.meta.UpsertFileRecord(ctx, rec); err != nil {
		debug.LogWarn("process: metadata upsert failed for %s: %v", path, err)
	}

	return Result{
		Path:          path,
		Status:        StatusCompleted,
		ChunksCreated: len(chunks),
		Blocks:        fs.Blocks,
	}, nil
}

// commitChunks implements spec §4.6 step 5's atomic-with-rollback commit.
func (p *Processor) commitChunks(ctx context.Context, chunks []types.Chunk) ([]string, error) {
	committed := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if err := p.vectors.CreateChunk(ctx, ch.ChunkID, ch.Content, ch.Metadata); err != nil {
			return committed, errtypes.New(errtypes.KindVectorStoreDown, "process.commit", err)
		}
		committed = append(committed, ch.ChunkID)
	}
	return committed, nil
}

func (p *Processor) rollback(ctx context.Context, committed []string) {
	for _, cid := range committed {
		if err := p.vectors.DeleteChunk(ctx, cid); err != nil {
			debug.LogWarn("process: rollback delete failed for chunk %s: %v", cid, err)
		}
	}
}

func (p *Processor) successRecord(path string, info os.FileInfo, chunksCreated int) types.FileRecord {
	return types.FileRecord{
		SourceID:      idgen.SourceID(path),
		Path:          path,
		SizeBytes:     info.Size(),
		ModTime:       info.ModTime(),
		Status:        types.RecordCompleted,
		ChunksCreated: chunksCreated,
		UpdatedAt:     time.Now(),
	}
}

// failureRecord implements spec §4.6 step 7: write a failed FileRecord with
// last_error; rollback already happened in run/commitChunks before err
// propagated here.
func (p *Processor) failureRecord(ctx context.Context, path string, res Result, err error) Result {
	res.Path = path
	res.Status = StatusFailed
	res.ErrorMessage = err.Error()

	rec := types.FileRecord{
		SourceID:  idgen.SourceID(path),
		Path:      path,
		Status:    types.RecordFailed,
		LastError: err.Error(),
		UpdatedAt: time.Now(),
	}
	if uerr := p.meta.UpsertFileRecord(ctx, rec); uerr != nil {
		debug.LogWarn("process: failed to persist failure record for %s: %v", path, uerr)
	}
	return res
}

// ProcessBatch implements spec §4.6's per-file isolation: one file's
// exception never aborts another's.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	for i, path := range paths {
		results[i] = p.safeProcess(ctx, path)
	}
	return results
}

func (p *Processor) safeProcess(ctx context.Context, path string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			debug.LogError("process: panic processing %s: %v", path, r)
			res = Result{Path: path, Status: StatusFailed, ErrorMessage: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return p.Process(ctx, path)
}
