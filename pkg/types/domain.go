package types

// Asset describes a validated model file.
type Asset struct {
	// File name without directory.
	// example: tinyllama-1.1b-chat.Q4_K_M.gguf
	Name string `json:"name" example:"tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-1.1b-chat.Q4_K_M.gguf"`
	// File size in bytes.
	// example: 668788096
	Size int64 `json:"size" example:"668788096"`
	// Human readable size.
	// example: 637.8MiB
	SizeHuman string `json:"size_human" example:"637.8MiB"`
	// Content digest.
	// example: sha256:9fecc3b3cd76bba89d504f29b616eedf7da85b96540e490ca5824d3f7d2776a0
	Digest string `json:"digest" example:"sha256:9fecc3b3cd76bba89d504f29b616eedf7da85b96540e490ca5824d3f7d2776a0"`
	// Quantization tag.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Model architecture from GGUF metadata.
	// example: llama
	Architecture string `json:"architecture,omitempty" example:"llama"`
	// Container format (gguf or raw).
	// example: gguf
	Format string `json:"format" example:"gguf"`
}

// Session summarizes a leased inference session.
type Session struct {
	// Session identifier.
	// example: 5b0c6f0e-3f4b-4c36-9a55-8d7d3b8f2b61
	ID string `json:"id" example:"5b0c6f0e-3f4b-4c36-9a55-8d7d3b8f2b61"`
	// Lifecycle state (idle, generating, cancelled, closed).
	// example: idle
	State string `json:"state" example:"idle"`
	// Creation time (unix seconds).
	// example: 1700000000
	Created int64 `json:"created_unix" example:"1700000000"`
	// Last activity (unix seconds).
	// example: 1700000060
	LastUsed int64 `json:"last_used_unix" example:"1700000060"`
	// Tokens produced by the current or last generation.
	// example: 42
	Tokens int `json:"tokens" example:"42"`
}
