// Package hostinfo describes the machine a rank runs on, for report headers
package hostinfo

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Info is a best-effort description of the host. Fields that cannot be
// detected keep their zero value, or "Unknown" for strings.
type Info struct {
	Hostname    string `json:"hostname" yaml:"hostname"`
	OS          string `json:"os" yaml:"os"`
	Arch        string `json:"arch" yaml:"arch"`
	CPUModel    string `json:"cpu_model" yaml:"cpu_model"`
	CPUThreads  int    `json:"cpu_threads" yaml:"cpu_threads"`
	MemoryBytes uint64 `json:"memory_bytes" yaml:"memory_bytes"`
}

// Detect collects host information. It never fails.
func Detect() *Info {
	info := &Info{
		Hostname:   "Unknown",
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUModel:   "Unknown",
		CPUThreads: runtime.NumCPU(),
	}

	if h, err := os.Hostname(); err == nil && h != "" {
		info.Hostname = h
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 && cpus[0].ModelName != "" {
		info.CPUModel = cpus[0].ModelName
	}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		info.CPUThreads = n
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		info.MemoryBytes = vmem.Total
	}

	return info
}

// MemoryGB returns the total memory in GiB
func (i *Info) MemoryGB() float64 {
	return float64(i.MemoryBytes) / (1024 * 1024 * 1024)
}

func (i *Info) String() string {
	return fmt.Sprintf("%s (%s/%s), %s, %d threads, %.1f GB RAM",
		i.Hostname, i.OS, i.Arch, i.CPUModel, i.CPUThreads, i.MemoryGB())
}
