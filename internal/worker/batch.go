package worker

import (
	"context"
	"slices"

	"github.com/ppiankov/sourcerank/internal/model"
)

// ProcessFunc enriches a single source. It must not fail; per-source errors
// are reported inside the returned value.
type ProcessFunc func(ctx context.Context, src model.SourceMetadata) model.ProcessedSourceData

// ChunkJob processes one contiguous slice of the input
type ChunkJob struct {
	Index   int
	Sources []model.SourceMetadata
	Process ProcessFunc
}

// Execute processes every source of the chunk in order. A chunk that has
// started always completes.
func (j *ChunkJob) Execute(ctx context.Context) Result {
	items := make([]model.ProcessedSourceData, 0, len(j.Sources))
	for _, src := range j.Sources {
		items = append(items, j.Process(ctx, src))
	}
	return &ChunkResult{Index: j.Index, Items: items}
}

// ChunkResult holds the processed sources of one chunk, in input order
type ChunkResult struct {
	Index int
	Items []model.ProcessedSourceData
	Error error
}

// GetError returns the error from the chunk result
func (r *ChunkResult) GetError() error {
	return r.Error
}

// Chunk splits sources into consecutive slices of at most size elements.
func Chunk(sources []model.SourceMetadata, size int) [][]model.SourceMetadata {
	if size <= 0 {
		size = len(sources)
	}
	var chunks [][]model.SourceMetadata
	for start := 0; start < len(sources); start += size {
		end := min(start+size, len(sources))
		chunks = append(chunks, sources[start:end])
	}
	return chunks
}

// BatchProcessor processes sources in chunks on a bounded worker pool
type BatchProcessor struct {
	process     ProcessFunc
	concurrency int
	chunkSize   int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(process ProcessFunc, concurrency, chunkSize int) *BatchProcessor {
	return &BatchProcessor{
		process:     process,
		concurrency: max(concurrency, 1),
		chunkSize:   max(chunkSize, 1),
	}
}

// ProcessDirect processes sources one after another on the calling
// goroutine. It stops between sources once ctx is cancelled.
func (b *BatchProcessor) ProcessDirect(ctx context.Context, sources []model.SourceMetadata) ([]model.ProcessedSourceData, bool) {
	out := make([]model.ProcessedSourceData, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			return out, false
		}
		out = append(out, b.process(ctx, src))
	}
	return out, true
}

// ProcessChunked processes all sources concurrently and merges the chunks
// back in input order. The second return value is false when cancellation
// left some chunks unprocessed.
func (b *BatchProcessor) ProcessChunked(ctx context.Context, sources []model.SourceMetadata) ([]model.ProcessedSourceData, bool) {
	chunks := Chunk(sources, b.chunkSize)
	results := b.run(ctx, chunks, 0)
	return merge(results, len(sources)), len(results) == len(chunks)
}

// ProcessStream processes chunks in waves of one chunk per worker and stops
// after the first wave that brings the number of accepted items to quota.
// A quota of zero or less processes everything. Waves are merged in input
// order, so where it stops depends only on the input.
func (b *BatchProcessor) ProcessStream(ctx context.Context, sources []model.SourceMetadata, quota int, accept func(model.ProcessedSourceData) bool) ([]model.ProcessedSourceData, bool) {
	chunks := Chunk(sources, b.chunkSize)
	out := make([]model.ProcessedSourceData, 0, len(sources))
	accepted := 0

	for start := 0; start < len(chunks); start += b.concurrency {
		if ctx.Err() != nil {
			return out, false
		}

		wave := chunks[start:min(start+b.concurrency, len(chunks))]
		results := b.run(ctx, wave, start)
		items := merge(results, 0)
		out = append(out, items...)
		if len(results) < len(wave) {
			return out, false
		}

		if quota > 0 {
			for _, it := range items {
				if accept(it) {
					accepted++
				}
			}
			if accepted >= quota {
				break
			}
		}
	}
	return out, true
}

// run executes one job per chunk and returns the results that completed
func (b *BatchProcessor) run(ctx context.Context, chunks [][]model.SourceMetadata, offset int) []*ChunkResult {
	if len(chunks) == 0 {
		return nil
	}

	pool := NewPool(ctx, min(b.concurrency, len(chunks)))
	pool.Start()

	for i, chunk := range chunks {
		job := &ChunkJob{
			Index:   offset + i,
			Sources: chunk,
			Process: b.process,
		}
		if !pool.Submit(job) {
			break
		}
	}

	results := pool.Wait()
	out := make([]*ChunkResult, len(results))
	for i, result := range results {
		out[i] = result.(*ChunkResult)
	}
	return out
}

// merge concatenates chunk results by chunk index
func merge(results []*ChunkResult, sizeHint int) []model.ProcessedSourceData {
	slices.SortFunc(results, func(a, b *ChunkResult) int { return a.Index - b.Index })

	out := make([]model.ProcessedSourceData, 0, sizeHint)
	for _, r := range results {
		out = append(out, r.Items...)
	}
	return out
}
