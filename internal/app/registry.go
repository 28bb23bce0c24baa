package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/domain"
	"github.com/dkeye/RoboCast/internal/metrics"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Conn         core.SignalConnection
	Cancel       context.CancelFunc
	Role         domain.Role
	ConnectedAt  time.Time
	RegisteredAt time.Time
	Label        string
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []core.SessionID
}

// Registry owns every connected session and the broadcaster set.
// A mutation and the fan-out announcing it happen under one lock, so peers
// observe registry changes in the order they were applied.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[core.SessionID]*sessionEntry
	broadcasters map[core.SessionID]domain.Presence

	metrics *metrics.AppMetrics
	now     func() time.Time
}

func NewRegistry(m *metrics.AppMetrics) *Registry {
	if m == nil {
		m = metrics.Noop()
	}
	return &Registry{
		sessions:     make(map[core.SessionID]*sessionEntry),
		broadcasters: make(map[core.SessionID]domain.Presence),
		metrics:      m,
		now:          time.Now,
	}
}

func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		r.metrics.ConnectedSessions.Add(context.Background(), 1)
	}
	r.sessions[sid] = &sessionEntry{
		Conn:        conn,
		Cancel:      cancel,
		ConnectedAt: r.now(),
		Label:       label,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("client", label).Msg("bound session")
}

// Unbind forgets sid. If it was a broadcaster, removed is fanned out to every
// remaining session; departed is always fanned out.
func (r *Registry) Unbind(sid core.SessionID, removed, departed core.Frame) (bool, PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return false, PublishResult{}
	}
	delete(r.sessions, sid)
	r.metrics.ConnectedSessions.Add(context.Background(), -1)

	_, wasBroadcaster := r.broadcasters[sid]
	var res PublishResult
	if wasBroadcaster {
		delete(r.broadcasters, sid)
		r.metrics.RegisteredBroadcasters.Add(context.Background(), -1)
		res = r.fanOutLocked(sid, removed)
	}
	departedRes := r.fanOutLocked(sid, departed)
	res.SendTo += departedRes.SendTo
	res.Dropped = appendUnique(res.Dropped, departedRes.Dropped...)

	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Bool("broadcaster", wasBroadcaster).Msg("unbind session")
	return wasBroadcaster, res
}

// RegisterBroadcaster marks sid as a broadcaster and announces it to everybody
// else. Re-registering keeps the original presence record and announces again.
func (r *Registry) RegisterBroadcaster(sid core.SessionID, announce core.Frame) (PublishResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return PublishResult{}, false
	}
	if _, exists := r.broadcasters[sid]; !exists {
		now := r.now()
		entry.Role = domain.RoleBroadcaster
		entry.RegisteredAt = now
		r.broadcasters[sid] = domain.Presence{ID: sid.Peer(), RegisteredAt: now}
		r.metrics.RegisteredBroadcasters.Add(context.Background(), 1)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("registered broadcaster")
	}
	return r.fanOutLocked(sid, announce), true
}

func (r *Registry) IsBroadcaster(sid core.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.broadcasters[sid]
	return ok
}

// Broadcasters returns a snapshot ordered by registration time.
func (r *Registry) Broadcasters() []domain.Presence {
	r.mu.RLock()
	out := make([]domain.Presence, 0, len(r.broadcasters))
	for _, p := range r.broadcasters {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	return out
}

func (r *Registry) GetSession(sid core.SessionID) (core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return core.ClientSession{}, false
	}
	return core.ClientSession{
		ID:           sid,
		Role:         e.Role,
		ConnectedAt:  e.ConnectedAt,
		RegisteredAt: e.RegisteredAt,
		Label:        e.Label,
	}, true
}

// SendTo enqueues f for sid only.
func (r *Registry) SendTo(sid core.SessionID, f core.Frame) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.ErrUnknownSession
	}
	return e.Conn.TrySend(f)
}

// BroadcastFrom enqueues f for every session except from.
func (r *Registry) BroadcastFrom(from core.SessionID, f core.Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fanOutLocked(from, f)
}

func (r *Registry) fanOutLocked(from core.SessionID, f core.Frame) PublishResult {
	res := PublishResult{}
	for sid, e := range r.sessions {
		if sid == from {
			continue
		}
		if err := e.Conn.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.registry").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("fan-out result")
	return res
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func appendUnique(dst []core.SessionID, ids ...core.SessionID) []core.SessionID {
	for _, id := range ids {
		seen := false
		for _, d := range dst {
			if d == id {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, id)
		}
	}
	return dst
}
