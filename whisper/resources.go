package whisper

import (
	"fmt"
	"time"

	"subsai/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Thresholds below which a transcription is refused.
type Thresholds struct {
	IdleCPU  float64 // percent
	FreeMem  int64
	FreeDisk int64
	DiskPath string
}

// ResourceChecker reports whether the host can take another transcription.
type ResourceChecker func(Thresholds) error

// CheckResources samples CPU, memory and disk usage. Sampling errors are
// logged and ignored.
func CheckResources(th Thresholds) error {
	p, err := cpu.Percent(time.Second, false)
	if err != nil {
		logger.Warn("Could not get CPU usage", "error", err)
	} else if len(p) > 0 && p[0] > (100.0-th.IdleCPU) {
		return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], th.IdleCPU)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Warn("Could not get memory usage", "error", err)
	} else if vm.Available < uint64(th.FreeMem) {
		return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, th.FreeMem)
	}

	if th.DiskPath == "" {
		return nil
	}
	d, err := disk.Usage(th.DiskPath)
	if err != nil {
		logger.Warn("Could not get disk usage", "path", th.DiskPath, "error", err)
	} else if d.Free < uint64(th.FreeDisk) {
		return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, th.FreeDisk)
	}
	return nil
}
