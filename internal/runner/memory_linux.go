//go:build linux

package runner

import "golang.org/x/sys/unix"

// SystemMemoryTracker samples host memory through sysinfo(2). It stands in
// for accelerator memory on machines without a device backend.
type SystemMemoryTracker struct{}

func (SystemMemoryTracker) Observe(phase Phase, s *Stats) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	recordSample(phase, memorySample{
		total: uint64(info.Totalram) * unit,
		free:  uint64(info.Freeram) * unit,
	}, s)
}

// residentBytes returns the peak resident set size of the process.
func residentBytes() uint64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	// ru_maxrss is reported in kilobytes on linux.
	return uint64(ru.Maxrss) * 1024
}
