package job

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// minAvailableMemoryGB is the floor below which generation jobs, which buffer
// whole books in memory, start swapping on typical hosts
const minAvailableMemoryGB = 1.0

// getMemoryStats returns total and available system memory in bytes
func getMemoryStats() (total, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return v.Total, v.Available, nil
}

// checkMemoryPressure returns a human-readable warning when available system
// memory is low, or "" when there is headroom. Startup advisory only; the
// processor runs regardless.
func (p *Processor) checkMemoryPressure() string {
	total, available, err := getMemoryStats()
	if err != nil {
		p.logger.Debugw("Could not read system memory stats", "error", err)
		return ""
	}

	availableGB := float64(available) / (1024 * 1024 * 1024)
	totalGB := float64(total) / (1024 * 1024 * 1024)

	if availableGB < minAvailableMemoryGB {
		return fmt.Sprintf(
			"Low system memory: %.1fGB available of %.1fGB total. Generation jobs may be slow or fail; consider closing other applications.",
			availableGB, totalGB,
		)
	}
	return ""
}
