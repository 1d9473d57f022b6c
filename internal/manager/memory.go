package manager

import (
	"fmt"

	"github.com/elastic/go-sysinfo"
)

// MemoryProbe reports memory figures used for load preflight and pressure
// monitoring.
type MemoryProbe interface {
	// ProcessResident is the resident set size of this process in bytes.
	ProcessResident() (uint64, error)
	// HostAvailable is the memory the host can still hand out, in bytes.
	HostAvailable() (uint64, error)
}

// SysinfoProbe reads memory figures through go-sysinfo.
type SysinfoProbe struct{}

func (SysinfoProbe) ProcessResident() (uint64, error) {
	self, err := sysinfo.Self()
	if err != nil {
		return 0, fmt.Errorf("sysinfo self: %w", err)
	}
	mem, err := self.Memory()
	if err != nil {
		return 0, fmt.Errorf("process memory: %w", err)
	}
	return mem.Resident, nil
}

func (SysinfoProbe) HostAvailable() (uint64, error) {
	host, err := sysinfo.Host()
	if err != nil {
		return 0, fmt.Errorf("sysinfo host: %w", err)
	}
	mem, err := host.Memory()
	if err != nil {
		return 0, fmt.Errorf("host memory: %w", err)
	}
	return mem.Available, nil
}
