// Package preflight guards session startup with host resource checks.
// A session that would run out of memory or disk partway through is
// better refused up front.
package preflight

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/overseerd/overseer/pkg/faults"
)

// Config sets the minimum resources a session needs to start
type Config struct {
	// MinFreeMemoryMB refuses startup below this much available memory
	MinFreeMemoryMB uint64

	// MinFreeDiskMB refuses startup below this much free disk on Path
	MinFreeDiskMB uint64

	// Path is the filesystem to check, defaults to "/"
	Path string
}

// DefaultConfig returns conservative thresholds
func DefaultConfig() Config {
	return Config{
		MinFreeMemoryMB: 512,
		MinFreeDiskMB:   1024,
		Path:            "/",
	}
}

// Check verifies the host has enough headroom for a session. Failures
// are Resource faults and not recoverable; retrying immediately on the
// same host will not free memory or disk.
func Check(cfg Config) error {
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	if cfg.MinFreeMemoryMB > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return fmt.Errorf("failed to read memory stats: %w", err)
		}
		availableMB := vm.Available / (1024 * 1024)
		if availableMB < cfg.MinFreeMemoryMB {
			return faults.New(faults.CategoryResource, "low_memory",
				fmt.Sprintf("available memory %dMB below required %dMB",
					availableMB, cfg.MinFreeMemoryMB), false).
				WithContext("available_mb", availableMB).
				WithContext("required_mb", cfg.MinFreeMemoryMB)
		}
	}

	if cfg.MinFreeDiskMB > 0 {
		usage, err := disk.Usage(cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to read disk stats for %s: %w", cfg.Path, err)
		}
		freeMB := usage.Free / (1024 * 1024)
		if freeMB < cfg.MinFreeDiskMB {
			return faults.New(faults.CategoryResource, "low_disk",
				fmt.Sprintf("free disk %dMB below required %dMB on %s",
					freeMB, cfg.MinFreeDiskMB, cfg.Path), false).
				WithContext("free_mb", freeMB).
				WithContext("required_mb", cfg.MinFreeDiskMB).
				WithContext("path", cfg.Path)
		}
	}

	return nil
}
