package worker

import (
	"github.com/ppiankov/sourcerank/internal/model"
)

// Strategy is how a batch is processed
type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyChunked Strategy = "chunked-parallel"
	StrategyStream  Strategy = "prefilter-stream"
)

// Workers used on constrained devices regardless of core count
const constrainedWorkers = 2

// Chunks per worker the chunk size aims for
const chunksPerWorker = 4

// Plan is the scheduler's decision for one batch
type Plan struct {
	Strategy  Strategy `json:"strategy"`
	Workers   int      `json:"workers"`
	ChunkSize int      `json:"chunk_size"`
}

// Scheduler picks a processing strategy from input size and device profile
type Scheduler struct {
	cfg    model.WorkerConfig
	device DeviceProfile
}

// NewScheduler creates a scheduler
func NewScheduler(cfg model.WorkerConfig, device DeviceProfile) *Scheduler {
	return &Scheduler{cfg: cfg, device: device}
}

// Device returns the profile the scheduler plans against.
func (s *Scheduler) Device() DeviceProfile {
	return s.device
}

// Plan chooses the strategy for n sources. Thresholds are halved on
// constrained devices.
func (s *Scheduler) Plan(n int) Plan {
	direct, stream := s.cfg.DirectThreshold, s.cfg.StreamThreshold
	if s.device.Constrained {
		direct, stream = direct/2, stream/2
	}

	workers := s.workers()
	plan := Plan{Workers: workers, ChunkSize: s.chunkSize(n, workers)}

	switch {
	case n <= direct:
		plan.Strategy = StrategyDirect
		plan.Workers = 1
		plan.ChunkSize = max(n, 1)
	case n <= stream:
		plan.Strategy = StrategyChunked
	default:
		plan.Strategy = StrategyStream
	}
	return plan
}

func (s *Scheduler) workers() int {
	if s.device.Constrained {
		return min(constrainedWorkers, max(s.cfg.Max, 1))
	}
	lo := max(s.cfg.Min, 1)
	hi := max(s.cfg.Max, lo)
	return max(lo, min(s.device.Cores, hi))
}

// chunkSize spreads n over a few chunks per worker within the configured bounds
func (s *Scheduler) chunkSize(n, workers int) int {
	target := (n + workers*chunksPerWorker - 1) / (workers * chunksPerWorker)
	lo := max(s.cfg.MinChunkSize, 1)
	hi := max(s.cfg.MaxChunkSize, lo)
	return max(lo, min(target, hi))
}
