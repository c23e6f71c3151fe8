//go:build !linux && !darwin

package sysinfo

import "runtime"

// Without getrusage the closest figure is the memory obtained from the OS.
func maxRSSBytes() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.Sys)
}
