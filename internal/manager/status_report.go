package manager

import (
	"sort"
	"time"

	"github.com/docker/go-units"

	"modelrt/internal/asset"
	"modelrt/pkg/types"
)

// AssetInfo converts a to its API representation.
func AssetInfo(a asset.ModelAsset) types.Asset {
	return types.Asset{
		Name:         a.Name,
		Path:         a.Path,
		Size:         a.Size,
		SizeHuman:    a.HumanSize(),
		Digest:       a.Digest.String(),
		Quant:        a.Quant,
		Architecture: a.Architecture,
		Format:       string(a.Format),
	}
}

// SessionInfo converts s to its API representation.
func SessionInfo(s *Session) types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Session{
		ID:       s.id,
		State:    string(s.state),
		Created:  s.created.Unix(),
		LastUsed: s.lastUsed.Unix(),
		Tokens:   len(s.tokens),
	}
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	snap := m.monitor.Observe()
	resp := types.StatusResponse{
		State:                string(snap.RuntimeState),
		LastFailure:          snap.LastFailure,
		MaxSessions:          m.pool.Max(),
		Waiters:              snap.Waiters,
		MemoryUsedBytes:      snap.MemoryUsedBytes,
		MemoryUsed:           units.BytesSize(float64(snap.MemoryUsedBytes)),
		MemoryThresholdBytes: snap.MemoryThresholdBytes,
		LoadsTotal:           m.handle.LoadsTotal(),
		LeasesTotal:          m.pool.leasesTotal.Load(),
		PoolExhaustedTotal:   m.pool.exhausted.Load(),
		EvictionsTotal:       snap.Evictions,
		ForcedCancellations:  snap.ForcedCancellations,
		ServerTimeUnix:       time.Now().Unix(),
	}
	if a := m.handle.Asset(); !a.IsZero() {
		info := AssetInfo(a)
		resp.Model = &info
	}
	if t := m.handle.LoadedAt(); !t.IsZero() {
		resp.LoadedAt = t.Unix()
	}
	sessions := m.pool.Sessions()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].created.Before(sessions[j].created) })
	resp.Sessions = make([]types.Session, 0, len(sessions))
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, SessionInfo(s))
	}
	return resp
}
