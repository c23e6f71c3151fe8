// Package sysinfo reports process resource usage for progress logs.
package sysinfo

// MaxRSSMB returns the peak resident set size of the process in megabytes,
// or 0 when the platform does not report it.
func MaxRSSMB() float64 {
	b := maxRSSBytes()
	return float64(b) / (1 << 20)
}
