// Package tuner detects CPU and memory and derives worker counts and page
// cache limits from them.
package tuner

import (
	"runtime"
	"sync"
)

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the RAM in bytes we may plan around. On some
	// platforms it is an estimate.
	AvailableRAM int64
}

// defaultTotalRAM is assumed when memory cannot be detected.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024

func fallbackResources() SystemResources {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}
}

var (
	autoOnce sync.Once
	auto     OptimalConfig
)

// Auto returns the configuration for this machine. Detection runs once;
// if it fails, conservative defaults are used.
func Auto() OptimalConfig {
	autoOnce.Do(func() {
		resources, err := Detect()
		if err != nil || resources.AvailableRAM <= 0 {
			resources = fallbackResources()
		}
		auto = Calculate(resources)
	})
	return auto
}
