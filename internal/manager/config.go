package manager

import (
	"time"

	"github.com/rs/zerolog"

	"modelrt/internal/asset"
	"modelrt/internal/native"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxConcurrentSessions = 2
	defaultLoadTimeout           = 2 * time.Minute
	defaultLeaseTimeout          = 30 * time.Second
	defaultGenerationGrace       = 2 * time.Second
	defaultMonitorInterval       = 5 * time.Second
	defaultPressureSamples       = 3

	defaultContextSize = 512
	defaultThreads     = 2
	defaultBatchSize   = 32
)

// NoWait configures LeaseTimeout or GenerationGrace as zero. Any negative
// value does the same.
const NoWait time.Duration = -1

// ManagerConfig encapsulates all tunables for Manager construction.
// Zero values mean "use the default".
type ManagerConfig struct {
	// Backend is the native runtime. Nil selects native.NewLlamaBackend().
	Backend  native.Backend
	Manifest *asset.Manifest

	MaxConcurrentSessions int
	LoadTimeout           time.Duration
	// LeaseTimeout is the wait applied when callers pass a negative timeout.
	// NoWait makes such leases fail immediately when the pool is full.
	LeaseTimeout time.Duration
	// MemoryPressureThreshold in bytes of process resident memory; 0 disables
	// pressure handling.
	MemoryPressureThreshold uint64
	// GenerationGrace is how long Unload lets generations finish before
	// forcing them. NoWait forces them at once.
	GenerationGrace time.Duration
	// GenerationTimeout bounds a whole generation; 0 means no bound unless the
	// request carries one.
	GenerationTimeout time.Duration
	// FailFastLoad makes a Load racing an in-flight load return immediately
	// instead of waiting for its outcome.
	FailFastLoad bool
	// SkipLoadVerify disables re-hashing the mapped asset at load time.
	SkipLoadVerify  bool
	MonitorInterval time.Duration
	PressureSamples int

	NativeOptions native.Options
	// SupportedArchs restricts loading to these GOARCH values (ABI filter).
	// Empty allows any.
	SupportedArchs []string
	// PromptTemplate wraps prompts; "{prompt}" is replaced by the request prompt.
	PromptTemplate string

	// Registry scopes the one-live-handle rule. Nil uses the process registry.
	Registry  *HandleRegistry
	Memory    MemoryProbe
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// withDefaults returns a copy of cfg with unset fields filled in.
func (cfg ManagerConfig) withDefaults() ManagerConfig {
	if cfg.Backend == nil {
		cfg.Backend = native.NewLlamaBackend()
	}
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = defaultMaxConcurrentSessions
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.LeaseTimeout == 0 {
		cfg.LeaseTimeout = defaultLeaseTimeout
	}
	if cfg.GenerationGrace == 0 {
		cfg.GenerationGrace = defaultGenerationGrace
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = defaultMonitorInterval
	}
	if cfg.PressureSamples <= 0 {
		cfg.PressureSamples = defaultPressureSamples
	}
	if cfg.NativeOptions.ContextSize <= 0 {
		cfg.NativeOptions.ContextSize = defaultContextSize
	}
	if cfg.NativeOptions.Threads <= 0 {
		cfg.NativeOptions.Threads = defaultThreads
	}
	if cfg.NativeOptions.BatchSize <= 0 {
		cfg.NativeOptions.BatchSize = defaultBatchSize
	}
	if cfg.Registry == nil {
		cfg.Registry = processRegistry
	}
	if cfg.Memory == nil {
		cfg.Memory = SysinfoProbe{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.Logger == nil {
		l := zerolog.Nop()
		cfg.Logger = &l
	}
	return cfg
}
