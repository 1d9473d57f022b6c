package types

// PathRequest names a model file for /assets/resolve and /runtime/load.
type PathRequest struct {
	// Path to a model file; "~" is expanded.
	// example: ~/models/tinyllama-1.1b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"~/models/tinyllama-1.1b-chat.Q4_K_M.gguf"`
}

// LeaseRequest is the optional body of POST /sessions.
type LeaseRequest struct {
	// How long to wait for a free slot. Omitted uses the server default; 0 fails immediately.
	// example: 5000
	TimeoutMs *int `json:"timeout_ms,omitempty" example:"5000"`
}

// GenerateRequest is the body of POST /sessions/{id}/generate.
type GenerateRequest struct {
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of tokens to emit; omitted uses 150, 0 returns immediately.
	// example: 128
	MaxTokens *int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature; omitted uses 0.7.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability; omitted uses 0.9.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling; omitted uses 40.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Stop sequences. Matching text is not emitted.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty" example:"[\"\\n\\n\",\"END\"]"`
	// Random seed; 0 lets the runtime choose.
	// example: 42
	Seed int `json:"seed,omitempty" example:"42"`
	// Repeat penalty.
	// example: 1.1
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Generation timeout; omitted uses the server default.
	// example: 30000
	TimeoutMs int `json:"timeout_ms,omitempty" example:"30000"`
}

// TokenLine is one NDJSON line of a generate stream.
type TokenLine struct {
	// Position of the token in this generation.
	// example: 0
	Index int `json:"index" example:"0"`
	// Token text.
	// example: Waves
	Text string `json:"text" example:"Waves"`
}

// FinalLine terminates a generate stream.
type FinalLine struct {
	// Always true.
	// example: true
	Done bool `json:"done" example:"true"`
	// Why generation ended (end, stop, length, cancelled, error).
	// example: stop
	FinishReason string `json:"finish_reason" example:"stop"`
	// Full generated text.
	// example: Waves fold into foam
	Text string `json:"text" example:"Waves fold into foam"`
	// Number of emitted tokens.
	// example: 5
	Tokens int `json:"tokens" example:"5"`
	// Error message when the stream ended abnormally.
	Error string `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Runtime handle state (unloaded, loading, ready, failed, unloading).
	// example: ready
	State string `json:"state" example:"ready"`
	// Loaded asset, if any.
	Model *Asset `json:"model,omitempty"`
	// When the runtime became ready (unix seconds).
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix,omitempty" example:"1700000000"`
	// Last load or runtime failure.
	LastFailure string `json:"last_failure,omitempty"`
	// Maximum concurrent sessions.
	// example: 2
	MaxSessions int `json:"max_sessions" example:"2"`
	// Leased sessions.
	Sessions []Session `json:"sessions"`
	// Lease calls waiting for a slot.
	// example: 0
	Waiters int `json:"waiters" example:"0"`
	// Process resident memory in bytes.
	// example: 734003200
	MemoryUsedBytes uint64 `json:"memory_used_bytes" example:"734003200"`
	// Human readable resident memory.
	// example: 700MiB
	MemoryUsed string `json:"memory_used" example:"700MiB"`
	// Memory pressure threshold in bytes; 0 when disabled.
	// example: 1610612736
	MemoryThresholdBytes uint64 `json:"memory_threshold_bytes" example:"1610612736"`
	// Total runtime loads attempted.
	// example: 1
	LoadsTotal uint64 `json:"loads_total" example:"1"`
	// Total sessions leased.
	// example: 12
	LeasesTotal uint64 `json:"leases_total" example:"12"`
	// Lease calls rejected with pool exhausted.
	// example: 0
	PoolExhaustedTotal uint64 `json:"pool_exhausted_total" example:"0"`
	// Idle sessions evicted under memory pressure.
	// example: 0
	EvictionsTotal uint64 `json:"evictions_total" example:"0"`
	// Generations force-cancelled by unload, faults or timeouts.
	// example: 0
	ForcedCancellations uint64 `json:"forced_cancellations" example:"0"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
