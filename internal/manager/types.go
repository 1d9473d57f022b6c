package manager

import "time"

// State is the lifecycle state of the runtime handle.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateFailed    State = "failed"
	StateUnloading State = "unloading"
)

// SessionState is the lifecycle state of a leased session.
type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionGenerating SessionState = "generating"
	SessionCancelled  SessionState = "cancelled"
	SessionClosed     SessionState = "closed"
)

// FinishReason says why a token stream ended.
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishEnd       FinishReason = "end"
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishCancelled FinishReason = "cancelled"
	FinishError     FinishReason = "error"
)

// Recommendation is the monitor's advice to the application layer.
type Recommendation string

const (
	RecommendNone   Recommendation = ""
	RecommendEvict  Recommendation = "evict"
	RecommendReload Recommendation = "reload"
)

// HealthSnapshot is a point-in-time view of resource usage.
type HealthSnapshot struct {
	Time                 time.Time      `json:"time"`
	RuntimeState         State          `json:"runtime_state"`
	Model                string         `json:"model,omitempty"`
	MemoryUsedBytes      uint64         `json:"memory_used_bytes"`
	MemoryThresholdBytes uint64         `json:"memory_threshold_bytes,omitempty"`
	UnderPressure        bool           `json:"under_pressure"`
	ActiveSessions       int            `json:"active_sessions"`
	GeneratingSessions   int            `json:"generating_sessions"`
	Waiters              int            `json:"waiters"`
	LastFailure          string         `json:"last_failure,omitempty"`
	Evictions            uint64         `json:"evictions"`
	ForcedCancellations  uint64         `json:"forced_cancellations"`
	Recommendation       Recommendation `json:"recommendation,omitempty"`
}
