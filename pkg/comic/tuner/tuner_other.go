//go:build !darwin && !linux

package tuner

// Detect uses the runtime core count and a fixed memory estimate.
func Detect() (SystemResources, error) {
	return fallbackResources(), nil
}
