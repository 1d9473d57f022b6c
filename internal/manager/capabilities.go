package manager

import (
	"runtime"

	"github.com/elastic/go-sysinfo"

	"modelrt/internal/native"
)

// Capabilities describes what this host and binary can run.
type Capabilities struct {
	Arch                 string   `json:"arch"`
	OS                   string   `json:"os"`
	OSVersion            string   `json:"os_version,omitempty"`
	KernelVersion        string   `json:"kernel_version,omitempty"`
	CPUs                 int      `json:"cpus"`
	MemoryTotalBytes     uint64   `json:"memory_total_bytes"`
	MemoryAvailableBytes uint64   `json:"memory_available_bytes"`
	NativeBuilt          bool     `json:"native_built"`
	Backend              string   `json:"backend"`
	SupportedArchs       []string `json:"supported_archs,omitempty"`
	ArchSupported        bool     `json:"arch_supported"`
	Error                string   `json:"error,omitempty"`
}

// Capabilities inspects the host. It does not mutate state and is safe to
// call at any time.
func (m *Manager) Capabilities() Capabilities {
	c := Capabilities{
		Arch:           runtime.GOARCH,
		OS:             runtime.GOOS,
		CPUs:           runtime.NumCPU(),
		NativeBuilt:    native.Built(),
		Backend:        m.cfg.Backend.Name(),
		SupportedArchs: m.cfg.SupportedArchs,
		ArchSupported:  true,
	}
	if len(c.SupportedArchs) > 0 {
		c.ArchSupported = false
		for _, a := range c.SupportedArchs {
			if a == c.Arch {
				c.ArchSupported = true
			}
		}
	}
	host, err := sysinfo.Host()
	if err != nil {
		c.Error = err.Error()
		return c
	}
	info := host.Info()
	c.KernelVersion = info.KernelVersion
	if info.OS != nil {
		c.OSVersion = info.OS.Name + " " + info.OS.Version
	}
	if mem, err := host.Memory(); err == nil {
		c.MemoryTotalBytes = mem.Total
		c.MemoryAvailableBytes = mem.Available
	} else {
		c.Error = err.Error()
	}
	return c
}
