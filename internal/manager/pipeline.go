package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"modelrt/internal/native"
)

// Generation defaults applied by callers that leave fields unset (HTTP, CLI).
const (
	DefaultMaxTokens   = 150
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultTopK        = 40
)

// promptPlaceholder is substituted by the request prompt in PromptTemplate.
const promptPlaceholder = "{prompt}"

// Request describes one generation on a session.
type Request struct {
	Prompt string
	// MaxTokens caps emitted tokens; 0 yields an empty stream.
	MaxTokens     int
	Temperature   float32
	TopP          float32
	TopK          int
	RepeatPenalty float32
	Seed          int
	Stop          []string
	// Timeout bounds the whole generation; 0 uses the configured default.
	Timeout time.Duration
}

// Pipeline turns requests into lazy token streams on leased sessions.
type Pipeline struct {
	handle   *Handle
	pool     *Pool
	template string
	timeout  time.Duration
	log      *zerolog.Logger

	mu sync.Mutex
	// streams holds every stream whose native sequence is still open.
	streams map[*TokenStream]struct{}
}

func newPipeline(h *Handle, p *Pool, cfg ManagerConfig) *Pipeline {
	return &Pipeline{
		handle:   h,
		pool:     p,
		template: cfg.PromptTemplate,
		timeout:  cfg.GenerationTimeout,
		log:      cfg.Logger,
		streams:  make(map[*TokenStream]struct{}),
	}
}

func (pl *Pipeline) track(ts *TokenStream) {
	pl.mu.Lock()
	pl.streams[ts] = struct{}{}
	pl.mu.Unlock()
}

func (pl *Pipeline) untrack(ts *TokenStream) {
	pl.mu.Lock()
	delete(pl.streams, ts)
	pl.mu.Unlock()
}

// releaseAll ends every open stream and closes its native sequence before
// returning. It reports how many streams were still open.
func (pl *Pipeline) releaseAll() int {
	pl.mu.Lock()
	open := make([]*TokenStream, 0, len(pl.streams))
	for ts := range pl.streams {
		open = append(open, ts)
	}
	pl.mu.Unlock()
	for _, ts := range open {
		ts.forceRelease()
	}
	return len(open)
}

func applyTemplate(tmpl, prompt string) string {
	if tmpl == "" {
		return prompt
	}
	if !strings.Contains(tmpl, promptPlaceholder) {
		return tmpl + prompt
	}
	return strings.ReplaceAll(tmpl, promptPlaceholder, prompt)
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return invalidRequestError{msg: "prompt is empty"}
	}
	if req.MaxTokens < 0 {
		return invalidRequestError{msg: "max_tokens must be >= 0"}
	}
	if req.Temperature < 0 {
		return invalidRequestError{msg: "temperature must be >= 0"}
	}
	if req.TopP < 0 || req.TopP > 1 {
		return invalidRequestError{msg: "top_p must be within [0,1]"}
	}
	if req.TopK < 0 {
		return invalidRequestError{msg: "top_k must be >= 0"}
	}
	for _, s := range req.Stop {
		if s == "" {
			return invalidRequestError{msg: "stop sequences must not be empty"}
		}
	}
	return nil
}

// Generate starts a generation on s. No token is produced until the returned
// stream's Next is called.
func (pl *Pipeline) Generate(ctx context.Context, s *Session, req Request) (*TokenStream, error) {
	if s == nil {
		return nil, invalidRequestError{msg: "no session"}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts, err := pl.start(s, req)
	if err != nil && errors.Is(err, native.ErrFatal) {
		pl.handle.fault(err)
	}
	return ts, err
}

func (pl *Pipeline) start(s *Session, req Request) (*TokenStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionClosed:
		return nil, invalidRequestError{msg: "session closed"}
	case SessionGenerating:
		return nil, invalidRequestError{msg: "session already generating"}
	}

	model, epoch, err := pl.handle.beginGeneration()
	if err != nil {
		return nil, err
	}
	s.tokens = s.tokens[:0]
	s.lastUsed = time.Now()
	if req.MaxTokens == 0 {
		pl.handle.endGeneration(epoch)
		s.state = SessionIdle
		return &TokenStream{done: true, reason: FinishLength, endErr: io.EOF, released: true}, nil
	}

	params := native.Params{
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		RepeatPenalty: req.RepeatPenalty,
		Seed:          req.Seed,
		Stop:          req.Stop,
	}
	seq, err := model.Start(applyTemplate(pl.template, req.Prompt), params)
	if err != nil {
		pl.handle.endGeneration(epoch)
		return nil, fmt.Errorf("start generation: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = pl.timeout
	}
	forceCtx, force := context.WithCancel(context.Background())
	ts := &TokenStream{
		session:   s,
		handle:    pl.handle,
		pool:      pl.pool,
		pipeline:  pl,
		log:       pl.log,
		seq:       seq,
		epoch:     epoch,
		maxTokens: req.MaxTokens,
		stop:      req.Stop,
		timeout:   timeout,
		forceCtx:  forceCtx,
		force:     force,
	}
	if timeout > 0 {
		ts.deadline = time.Now().Add(timeout)
	}
	s.state = SessionGenerating
	s.stream = ts
	pl.track(ts)
	return ts, nil
}

// Cancel asks the running generation on s to stop. The stream ends before
// its next native step; a token already being produced is discarded.
func (pl *Pipeline) Cancel(s *Session) error {
	if s == nil {
		return invalidRequestError{msg: "no session"}
	}
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return invalidRequestError{msg: "session closed"}
	}
	st := s.stream
	if s.state == SessionGenerating {
		s.state = SessionCancelled
	}
	s.mu.Unlock()
	if st != nil {
		st.cancelled.Store(true)
	}
	return nil
}

// TokenStream is a lazy, single-consumer sequence of generated tokens.
// Each Next call drives at most one native step. Once it has returned an
// error the stream is finished and keeps returning that error.
type TokenStream struct {
	session  *Session
	handle   *Handle
	pool     *Pool
	pipeline *Pipeline
	log      *zerolog.Logger
	seq      native.Sequence
	epoch    uint64

	maxTokens int
	stop      []string
	timeout   time.Duration
	deadline  time.Time

	// cancelled is the cooperative flag checked before each native step.
	cancelled atomic.Bool
	// forceCtx interrupts a native step in progress.
	forceCtx context.Context
	force    context.CancelFunc

	mu       sync.Mutex
	pulled   int
	pending  []native.Token // held back while a stop sequence may be forming
	ready    []native.Token
	text     strings.Builder
	done     bool
	released bool
	reason   FinishReason
	endErr   error
}

// forceStop terminates the stream without taking its lock.
func (ts *TokenStream) forceStop() {
	ts.cancelled.Store(true)
	if ts.force != nil {
		ts.force()
	}
}

// forceRelease ends the stream and closes its native sequence before
// returning. A native step in progress is interrupted first.
func (ts *TokenStream) forceRelease() {
	ts.forceStop()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.finishLocked(FinishCancelled, nil)
}

// Next returns the next token, or io.EOF once the stream has ended normally.
func (ts *TokenStream) Next(ctx context.Context) (native.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for {
		if len(ts.ready) > 0 {
			tok := ts.ready[0]
			ts.ready = ts.ready[1:]
			ts.text.WriteString(tok.Text)
			ts.session.appendToken(tok)
			return tok, nil
		}
		if ts.done {
			return native.Token{}, ts.endErr
		}
		if ts.cancelled.Load() {
			ts.finishLocked(FinishCancelled, nil)
			continue
		}
		if ts.pulled >= ts.maxTokens {
			ts.flushLocked()
			ts.finishLocked(FinishLength, nil)
			continue
		}
		if !ts.deadline.IsZero() && !time.Now().Before(ts.deadline) {
			ts.timeoutLocked()
			continue
		}

		tok, err := ts.step(ctx)
		switch {
		case ts.cancelled.Load() || ts.forceCtx.Err() != nil:
			ts.finishLocked(FinishCancelled, nil)
		case err == nil:
			ts.pulled++
			ts.pending = append(ts.pending, tok)
			if ts.scanStopLocked() {
				ts.finishLocked(FinishStop, nil)
			}
		case errors.Is(err, io.EOF):
			ts.flushLocked()
			ts.finishLocked(FinishEnd, nil)
		case !ts.deadline.IsZero() && !time.Now().Before(ts.deadline):
			ts.timeoutLocked()
		case ctx.Err() != nil:
			ts.finishLocked(FinishCancelled, ctx.Err())
		case errors.Is(err, native.ErrFatal):
			ts.finishLocked(FinishError, fmt.Errorf("generate: %w", err))
			// fault cancels generating sessions, including this one; the
			// stream is already finished so forceStop is harmless.
			ts.handle.fault(err)
		default:
			ts.finishLocked(FinishError, fmt.Errorf("generate: %w", err))
		}
	}
}

// step runs one native step bounded by ctx, the deadline and forced stops.
func (ts *TokenStream) step(ctx context.Context) (native.Token, error) {
	nctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !ts.deadline.IsZero() {
		var dcancel context.CancelFunc
		nctx, dcancel = context.WithDeadline(nctx, ts.deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ts.forceCtx, cancel)
	defer stop()
	return ts.seq.Next(nctx)
}

// scanStopLocked moves pending tokens that cannot belong to a stop sequence
// to ready. It reports whether a stop sequence matched. Text before the match
// is kept, cutting the token the stop sequence starts in; the rest is dropped.
func (ts *TokenStream) scanStopLocked() bool {
	if len(ts.stop) == 0 {
		ts.ready = append(ts.ready, ts.pending...)
		ts.pending = ts.pending[:0]
		return false
	}
	var buf strings.Builder
	for _, t := range ts.pending {
		buf.WriteString(t.Text)
	}
	text := buf.String()

	match := -1
	for _, s := range ts.stop {
		if i := strings.Index(text, s); i >= 0 && (match < 0 || i < match) {
			match = i
		}
	}
	if match >= 0 {
		off := ts.releaseBeforeLocked(match)
		if off < match && len(ts.pending) > 0 {
			tok := ts.pending[0]
			tok.Text = tok.Text[:match-off]
			ts.ready = append(ts.ready, tok)
		}
		ts.pending = nil
		return true
	}

	// Hold back the longest suffix that could still grow into a stop sequence.
	hold := len(text)
	for i := range text {
		if hasStopPrefix(text[i:], ts.stop) {
			hold = i
			break
		}
	}
	ts.releaseBeforeLocked(hold)
	return false
}

// releaseBeforeLocked moves pending tokens that end at or before byte offset
// cut to ready and keeps the rest pending. It returns the bytes released.
func (ts *TokenStream) releaseBeforeLocked(cut int) int {
	off := 0
	n := 0
	for _, t := range ts.pending {
		if off+len(t.Text) > cut {
			break
		}
		off += len(t.Text)
		n++
	}
	ts.ready = append(ts.ready, ts.pending[:n]...)
	ts.pending = append(ts.pending[:0:0], ts.pending[n:]...)
	return off
}

func hasStopPrefix(s string, stops []string) bool {
	for _, st := range stops {
		if strings.HasPrefix(st, s) {
			return true
		}
	}
	return false
}

func (ts *TokenStream) flushLocked() {
	ts.ready = append(ts.ready, ts.pending...)
	ts.pending = nil
}

func (ts *TokenStream) timeoutLocked() {
	ts.pool.forced.Add(1)
	ts.log.Warn().Str("event", "generation_timeout").Str("session", ts.session.id).Dur("timeout", ts.timeout).Msg("generation timed out")
	ts.finishLocked(FinishCancelled, generationTimeoutError{session: ts.session.id, after: ts.timeout})
}

// finishLocked ends the stream and releases its native sequence and handle
// reference. Tokens already in ready are still delivered for normal endings.
func (ts *TokenStream) finishLocked(reason FinishReason, err error) {
	if ts.done {
		return
	}
	ts.done = true
	ts.reason = reason
	ts.endErr = io.EOF
	if err != nil {
		ts.endErr = err
		ts.ready = nil
	}
	if reason == FinishCancelled {
		ts.ready = nil
	}
	ts.releaseLocked()
}

func (ts *TokenStream) releaseLocked() {
	if ts.released {
		return
	}
	ts.released = true
	if ts.force != nil {
		ts.force()
	}
	if err := ts.seq.Close(); err != nil {
		ts.log.Debug().Err(err).Msg("close native sequence")
	}
	if ts.pipeline != nil {
		ts.pipeline.untrack(ts)
	}
	ts.handle.endGeneration(ts.epoch)
	ts.session.finishStream(ts, ts.reason)
}

// Close abandons the stream. It is safe to call concurrently with Next and
// more than once.
func (ts *TokenStream) Close() error {
	ts.forceStop()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.done {
		ts.finishLocked(FinishCancelled, nil)
	}
	return nil
}

// FinishReason is empty until the stream has ended.
func (ts *TokenStream) FinishReason() FinishReason {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.reason
}

// Text is the concatenation of the tokens returned so far.
func (ts *TokenStream) Text() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.text.String()
}
