package stats

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSampler tracks the highest RSS observed for the current process
type ProcessSampler struct {
	proc *process.Process
	peak atomic.Uint64 // KiB
}

func NewProcessSampler(ctx context.Context) (*ProcessSampler, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open current process: %w", err)
	}
	s := &ProcessSampler{proc: proc}
	s.PeakRSS()
	return s, nil
}

// PeakRSS samples current memory and returns the running maximum. A failed
// sample leaves the previous peak unchanged.
func (s *ProcessSampler) PeakRSS() uint64 {
	info, err := s.proc.MemoryInfo()
	if err == nil {
		current := info.RSS
		if info.HWM > current {
			current = info.HWM
		}
		s.observe(current / 1024)
	}
	return s.peak.Load()
}

func (s *ProcessSampler) observe(kib uint64) {
	for {
		prev := s.peak.Load()
		if kib <= prev || s.peak.CompareAndSwap(prev, kib) {
			return
		}
	}
}
