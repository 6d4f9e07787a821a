//go:build !linux

package runner

// SystemMemoryTracker is a no-op on platforms without sysinfo(2).
type SystemMemoryTracker struct{}

func (SystemMemoryTracker) Observe(Phase, *Stats) {}

func residentBytes() uint64 {
	return 0
}
