package httpapi

import (
	"context"
	"errors"
	"io"
	"time"

	"modelrt/internal/manager"
	"modelrt/internal/native"
	"modelrt/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ResolveAsset(path string) (types.Asset, error)
	Load(ctx context.Context, path string) (types.Asset, error)
	Unload(ctx context.Context) error
	Reload(ctx context.Context) error
	// Lease waits up to timeout for a slot; a negative timeout uses the
	// server default.
	Lease(ctx context.Context, timeout time.Duration) (types.Session, error)
	Release(id string) error
	// Generate streams tokens of one generation to emit. The result is
	// valid even when an error is returned after streaming started.
	Generate(ctx context.Context, id string, req manager.Request, emit func(native.Token) error) (GenerateResult, error)
	Cancel(id string) error
	Health() manager.HealthSnapshot
	Status() types.StatusResponse
	Capabilities() manager.Capabilities
	Ready() bool
}

// GenerateResult summarizes a finished generation.
type GenerateResult struct {
	FinishReason manager.FinishReason
	Text         string
	Tokens       int
}

// managerService adapts *manager.Manager to Service, addressing sessions by id.
type managerService struct {
	m *manager.Manager
}

// NewService exposes m over HTTP.
func NewService(m *manager.Manager) Service { return managerService{m: m} }

func (s managerService) ResolveAsset(path string) (types.Asset, error) {
	a, err := s.m.ResolveAsset(path)
	if err != nil {
		return types.Asset{}, err
	}
	return manager.AssetInfo(a), nil
}

func (s managerService) Load(ctx context.Context, path string) (types.Asset, error) {
	a, err := s.m.ResolveAsset(path)
	if err != nil {
		return types.Asset{}, err
	}
	if err := s.m.LoadRuntime(ctx, a); err != nil {
		return types.Asset{}, err
	}
	return manager.AssetInfo(a), nil
}

func (s managerService) Unload(ctx context.Context) error { return s.m.UnloadRuntime(ctx) }

func (s managerService) Reload(ctx context.Context) error { return s.m.Reload(ctx) }

func (s managerService) Lease(ctx context.Context, timeout time.Duration) (types.Session, error) {
	sess, err := s.m.LeaseSession(ctx, timeout)
	if err != nil {
		return types.Session{}, err
	}
	return manager.SessionInfo(sess), nil
}

func (s managerService) session(id string) (*manager.Session, error) {
	sess, ok := s.m.Session(id)
	if !ok {
		return nil, sessionNotFoundError{id: id}
	}
	return sess, nil
}

func (s managerService) Release(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	s.m.ReleaseSession(sess)
	return nil
}

func (s managerService) Generate(ctx context.Context, id string, req manager.Request, emit func(native.Token) error) (GenerateResult, error) {
	sess, err := s.session(id)
	if err != nil {
		return GenerateResult{}, err
	}
	ts, err := s.m.Generate(ctx, sess, req)
	if err != nil {
		return GenerateResult{}, err
	}
	defer ts.Close()
	n := 0
	result := func() GenerateResult {
		return GenerateResult{FinishReason: ts.FinishReason(), Text: ts.Text(), Tokens: n}
	}
	for {
		tok, err := ts.Next(ctx)
		if errors.Is(err, io.EOF) {
			return result(), nil
		}
		if err != nil {
			return result(), err
		}
		if err := emit(tok); err != nil {
			ts.Close()
			return result(), err
		}
		n++
	}
}

func (s managerService) Cancel(id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	return s.m.Cancel(sess)
}

func (s managerService) Health() manager.HealthSnapshot { return s.m.Health() }

func (s managerService) Status() types.StatusResponse { return s.m.Status() }

func (s managerService) Capabilities() manager.Capabilities { return s.m.Capabilities() }

func (s managerService) Ready() bool { return s.m.Ready() }
