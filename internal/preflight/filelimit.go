package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the lowest soft limit an index run accepts. The
// store, its lock, the search index segments and one image per worker are
// open at once.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the soft RLIMIT_NOFILE. When the hard limit
// allows more, the hint says how far it can be raised.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to read file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur >= MinFileDescriptors {
		result.Status = StatusPass
		return result
	}

	result.Status = StatusFail
	if lim.Max >= MinFileDescriptors {
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' (hard limit %d)", MinFileDescriptors, lim.Max)
	} else {
		result.Details = fmt.Sprintf("Hard limit is %d; raise it in /etc/security/limits.conf", lim.Max)
	}
	return result
}
