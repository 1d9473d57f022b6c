//go:build llama

package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// Built reports whether this binary carries a real native backend.
func Built() bool { return true }

type llamaBackend struct{}

// NewLlamaBackend returns the in-process go-llama.cpp backend.
func NewLlamaBackend() Backend { return llamaBackend{} }

func (llamaBackend) Name() string { return "llama.cpp" }

// Load instantiates the model from src.Path. llama.cpp maps the file itself,
// so src.Data is only kept alive alongside the model.
func (llamaBackend) Load(ctx context.Context, src Source) (Model, error) {
	if strings.TrimSpace(src.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mo := []llama.ModelOption{
		llama.SetContext(zn(src.Options.ContextSize, 512)),
		llama.SetNBatch(zn(src.Options.BatchSize, 32)),
		llama.SetMMap(!src.Options.NoMMap),
	}
	if src.Options.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(src.Options.GPULayers))
	}
	m, err := llama.New(src.Path, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaModel{
		model:   m,
		threads: zn(src.Options.Threads, 2),
		busy:    make(chan struct{}, 1),
	}, nil
}

// llamaModel owns the loaded model. go-llama.cpp keeps a single token
// callback per model, so sequences run one at a time.
type llamaModel struct {
	model   *llama.LLama
	threads int
	busy    chan struct{}
}

func (m *llamaModel) Start(prompt string, params Params) (Sequence, error) {
	if m.model == nil {
		return nil, fmt.Errorf("%w: llama model not initialized", ErrFatal)
	}
	return &llamaSequence{
		m:      m,
		prompt: prompt,
		params: params,
		tokens: make(chan string),
		stop:   make(chan struct{}),
		done:   make(chan error, 1),
	}, nil
}

func (m *llamaModel) Close() error {
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

// llamaSequence bridges Predict's push callback to a pull API. The callback
// blocks until the consumer takes the token, so at most one token is
// produced ahead of the caller.
type llamaSequence struct {
	m       *llamaModel
	prompt  string
	params  Params
	started bool
	index   int
	tokens  chan string
	stop    chan struct{}
	done    chan error
	closed  bool
}

func (s *llamaSequence) start(ctx context.Context) error {
	select {
	case s.m.busy <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.started = true
	s.m.model.SetTokenCallback(func(tok string) bool {
		select {
		case s.tokens <- tok:
			return true
		case <-s.stop:
			return false
		}
	})
	po := mapParamsToPredictOptions(s.params, s.m.threads)
	go func() {
		_, err := s.m.model.Predict(s.prompt, po...)
		s.done <- err
	}()
	return nil
}

func (s *llamaSequence) Next(ctx context.Context) (Token, error) {
	if s.closed {
		return Token{}, io.EOF
	}
	if !s.started {
		if err := s.start(ctx); err != nil {
			return Token{}, err
		}
	}
	select {
	case tok := <-s.tokens:
		t := Token{Index: s.index, Text: tok}
		s.index++
		return t, nil
	case err := <-s.done:
		s.done <- err
		if err != nil {
			return Token{}, fmt.Errorf("%w: %v", ErrFatal, err)
		}
		return Token{}, io.EOF
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

func (s *llamaSequence) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	if s.started {
		err := <-s.done
		s.done <- err
		<-s.m.busy
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// mapParamsToPredictOptions converts sampling params into go-llama.cpp options.
func mapParamsToPredictOptions(params Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, params.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(params.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(params.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(params.Seed))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}
