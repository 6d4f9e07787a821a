package runner

// Phase identifies when a memory sample is taken.
type Phase int

const (
	PhaseConstruct Phase = iota
	PhaseAfterLoad
	PhaseAfterGenerate
)

func (p Phase) String() string {
	switch p {
	case PhaseConstruct:
		return "construct"
	case PhaseAfterLoad:
		return "after_load"
	case PhaseAfterGenerate:
		return "after_generate"
	default:
		return "unknown"
	}
}

// MemoryTracker records device memory samples into Stats. The Runner calls
// Observe at construction, after load and after each generate.
type MemoryTracker interface {
	Observe(phase Phase, s *Stats)
}

// NoopMemoryTracker leaves Stats.GPU unset.
type NoopMemoryTracker struct{}

func (NoopMemoryTracker) Observe(Phase, *Stats) {}

// memorySample is one reading of device memory in bytes.
type memorySample struct {
	total, free uint64
}

// recordSample folds a sample into s according to phase.
func recordSample(phase Phase, sample memorySample, s *Stats) {
	gpu := s.gpu()
	gpu.TotalBytes = sample.total
	switch phase {
	case PhaseConstruct:
		gpu.FreeBeforeLoadBytes = sample.free
	case PhaseAfterLoad:
		gpu.FreeAfterLoadBytes = sample.free
	case PhaseAfterGenerate:
		gpu.FreeAfterGenerateBytes = sample.free
	}
	usedMB := float64(sample.total-min(sample.free, sample.total)) / (1024 * 1024)
	gpu.PeakUsageMB = max(gpu.PeakUsageMB, usedMB)
}
