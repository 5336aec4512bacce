package tuner

// Worker limits.
const (
	maxScanWorkers   = 32
	minScanWorkers   = 4
	maxDecodeWorkers = 16
	minDecodeWorkers = 2
)

// Page cache sizing.
const (
	// bytesPerDecodedPage estimates one decoded RGBA page at roughly
	// 2000x3000 pixels.
	bytesPerDecodedPage = 2000 * 3000 * 4

	// cacheMemoryFraction is the share of available RAM decoded pages
	// may occupy.
	cacheMemoryFraction = 0.25

	minCachedPages = 8
	maxCachedPages = 512
)

// OptimalConfig holds worker counts and cache limits tuned to the machine.
type OptimalConfig struct {
	// ScanWorkers bounds containers opened at once during a library scan.
	// Opening is I/O bound and may wait on external tools.
	ScanWorkers int

	// DecodeWorkers bounds concurrent page decodes. Decoding is CPU bound.
	DecodeWorkers int

	// MaxCachedPages caps the decoded page cache when it is sized to a
	// whole container.
	MaxCachedPages int
}

// Calculate derives the configuration from resources:
//   - ScanWorkers: 2 per core, between 4 and 32
//   - DecodeWorkers: one per core, between 2 and 16
//   - MaxCachedPages: a quarter of available RAM in decoded pages,
//     between 8 and 512
func Calculate(resources SystemResources) OptimalConfig {
	cores := max(resources.CPUCores, 1)

	scan := min(max(cores*2, minScanWorkers), maxScanWorkers)
	decode := min(max(cores, minDecodeWorkers), maxDecodeWorkers)

	pages := int(float64(resources.AvailableRAM) * cacheMemoryFraction / bytesPerDecodedPage)
	pages = min(max(pages, minCachedPages), maxCachedPages)

	return OptimalConfig{
		ScanWorkers:    scan,
		DecodeWorkers:  decode,
		MaxCachedPages: pages,
	}
}

// CalculateWithOverrides applies a worker override to both pools when it
// is positive, still capped at the pool maximums.
func CalculateWithOverrides(resources SystemResources, workerOverride int) OptimalConfig {
	config := Calculate(resources)
	if workerOverride > 0 {
		config.ScanWorkers = min(workerOverride, maxScanWorkers)
		config.DecodeWorkers = min(workerOverride, maxDecodeWorkers)
	}
	return config
}
