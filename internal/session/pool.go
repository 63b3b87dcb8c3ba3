// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPoolShutdown is returned by Pool methods after Shutdown has run.
var ErrPoolShutdown = errors.New("session: pool is shut down")

// ErrNoCapacity is returned by Checkout when the pool is at MaxSessions and
// every existing session is busy or cooling.
var ErrNoCapacity = errors.New("session: no idle session available")

// Config configures a per-surface session Pool.
type Config struct {
	MinIdle         int
	MaxSessions     int
	MaxPages        int
	MaxLife         time.Duration
	WarmupTick      time.Duration
	KeepAliveTick   time.Duration
	IdleTimeout     time.Duration
	CheckoutTimeout time.Duration
}

// SetDefaults fills in documented defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.MinIdle <= 0 {
		c.MinIdle = 1
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 5
	}
	if c.MaxLife <= 0 {
		c.MaxLife = 30 * time.Minute
	}
	if c.WarmupTick <= 0 {
		c.WarmupTick = 15 * time.Second
	}
	if c.KeepAliveTick <= 0 {
		c.KeepAliveTick = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.CheckoutTimeout <= 0 {
		c.CheckoutTimeout = 2 * time.Minute
	}
}

// Opener creates and warms a fresh Session for a surface. It returns once
// the underlying browser-like client is ready to be marked idle.
type Opener func(ctx context.Context, id string) (*Session, error)

// Pool manages one surface's set of long-lived sessions.
type Pool struct {
	platformID string
	config     Config
	open       Opener

	mu       sync.Mutex
	sessions map[string]*Session
	shutdown bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a Pool for platformID. open is used both for initial
// warmup and whenever a session is recycled.
func NewPool(platformID string, cfg Config, open Opener) *Pool {
	cfg.SetDefaults()
	return &Pool{
		platformID: platformID,
		config:     cfg,
		open:       open,
		sessions:   make(map[string]*Session),
	}
}

// Start launches the warmup and keep-alive background loops.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(2)
	go p.warmupLoop(ctx)
	go p.keepAliveLoop(ctx)
}

func (p *Pool) warmupLoop(ctx context.Context) {
	defer p.wg.Done()
	p.maintainMinIdle(ctx)
	ticker := time.NewTicker(p.config.WarmupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.maintainMinIdle(ctx)
		}
	}
}

func (p *Pool) maintainMinIdle(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.shutdown {
			p.mu.Unlock()
			return
		}
		idle := p.countLocked(StatusIdle) + p.countLocked(StatusWarming)
		total := len(p.sessions)
		p.mu.Unlock()

		if idle >= p.config.MinIdle || total >= p.config.MaxSessions {
			return
		}
		if _, err := p.spawn(ctx); err != nil {
			return
		}
	}
}

func (p *Pool) spawn(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	sess, err := p.open(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.MarkWarmedUp(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		_ = sess.Destroy()
		return nil, ErrPoolShutdown
	}
	p.sessions[sess.ID] = sess
	return sess, nil
}

func (p *Pool) keepAliveLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.KeepAliveTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepRecycle(ctx)
		}
	}
}

func (p *Pool) sweepRecycle(ctx context.Context) {
	now := time.Now()
	p.mu.Lock()
	var toRecycle []*Session
	var toForceError []*Session
	for _, s := range p.sessions {
		switch s.Status() {
		case StatusIdle:
			if s.NeedsRecycle(now) || now.Sub(s.LastUsedAt()) > p.config.IdleTimeout {
				toRecycle = append(toRecycle, s)
				continue
			}
			if err := s.KeepAlive(); err != nil {
				toRecycle = append(toRecycle, s)
			}
		case StatusActive:
			checkedOutAt := s.CheckedOutAt()
			if !checkedOutAt.IsZero() && now.Sub(checkedOutAt) > p.config.CheckoutTimeout {
				toForceError = append(toForceError, s)
			}
		}
	}
	p.mu.Unlock()

	for _, s := range toForceError {
		_ = s.MarkError()
		p.retire(s)
	}
	for _, s := range toRecycle {
		p.retire(s)
	}
	p.maintainMinIdle(ctx)
}

func (p *Pool) retire(s *Session) {
	_ = s.Cool()
	_ = s.Destroy()
	p.mu.Lock()
	delete(p.sessions, s.ID)
	p.mu.Unlock()
}

// Checkout returns an idle session (which one, when several are idle, is not
// defined), or opens a new one if under capacity. It returns ErrNoCapacity if every
// slot is occupied by a busy or cooling session.
func (p *Pool) Checkout(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, ErrPoolShutdown
	}
	for _, s := range p.sessions {
		if s.Status() == StatusIdle && !s.NeedsRecycle(time.Now()) {
			p.mu.Unlock()
			if err := s.Checkout(); err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	hasRoom := len(p.sessions) < p.config.MaxSessions
	p.mu.Unlock()

	if !hasRoom {
		return nil, ErrNoCapacity
	}

	s, err := p.spawn(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Checkout(); err != nil {
		return nil, err
	}
	return s, nil
}

// CheckIn returns a session to idle, or retires it if it now needs
// recycling.
func (p *Pool) CheckIn(s *Session) error {
	if s.NeedsRecycle(time.Now()) || s.Status() == StatusError {
		p.retire(s)
		return nil
	}
	return s.CheckIn()
}

func (p *Pool) countLocked(status Status) int {
	n := 0
	for _, s := range p.sessions {
		if s.Status() == status {
			n++
		}
	}
	return n
}

// HasCapacity reports whether at least required of this pool's sessions are
// usable: not in error or destroyed, and — when their cookie expiry is
// known — not expiring within withinMinutes.
func (p *Pool) HasCapacity(now time.Time, required int, withinMinutes time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline := now.Add(withinMinutes)
	count := 0
	for _, s := range p.sessions {
		switch s.Status() {
		case StatusError, StatusDestroyed:
			continue
		}
		if ce := s.CookieExpiresAt(); !ce.IsZero() && !ce.After(deadline) {
			continue
		}
		count++
	}
	return count >= required
}

// ExpiryForecast buckets this pool's authenticated sessions by how soon
// their auth cookie expires. Buckets are mutually exclusive: a session
// counts toward exactly one of Next5Min/Next15Min/Next30Min/Next1Hour/
// Unknown, whichever window its remaining cookie lifetime falls into
// first. Unknown also holds sessions with a cookie expiry further out than
// one hour, since no coarser bucket is defined.
type ExpiryForecast struct {
	Next5Min           int
	Next15Min          int
	Next30Min          int
	Next1Hour          int
	Unknown            int
	TotalAuthenticated int
}

// ExpiryForecast computes the forecast over this pool's live sessions as of
// now.
func (p *Pool) ExpiryForecast(now time.Time) ExpiryForecast {
	p.mu.Lock()
	defer p.mu.Unlock()

	var f ExpiryForecast
	for _, s := range p.sessions {
		if s.Status() == StatusDestroyed || !s.IsAuthenticated() {
			continue
		}
		f.TotalAuthenticated++

		ce := s.CookieExpiresAt()
		if ce.IsZero() {
			f.Unknown++
			continue
		}
		switch remaining := ce.Sub(now); {
		case remaining <= 5*time.Minute:
			f.Next5Min++
		case remaining <= 15*time.Minute:
			f.Next15Min++
		case remaining <= 30*time.Minute:
			f.Next30Min++
		case remaining <= 60*time.Minute:
			f.Next1Hour++
		default:
			f.Unknown++
		}
	}
	return f
}

// SessionsExpiringSoon returns the authenticated sessions whose cookie
// expires within window, ascending by time remaining.
func (p *Pool) SessionsExpiringSoon(now time.Time, window time.Duration) []*Session {
	p.mu.Lock()
	var soon []*Session
	for _, s := range p.sessions {
		if s.Status() == StatusDestroyed {
			continue
		}
		ce := s.CookieExpiresAt()
		if ce.IsZero() {
			continue
		}
		if ce.Sub(now) <= window {
			soon = append(soon, s)
		}
	}
	p.mu.Unlock()

	sort.Slice(soon, func(i, j int) bool {
		return soon[i].CookieExpiresAt().Before(soon[j].CookieExpiresAt())
	})
	return soon
}

// Size returns the total number of sessions currently tracked, regardless
// of status.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Occupancy reports the number of sessions currently checked out (active)
// versus idle in the pool, for metrics reporting.
func (p *Pool) Occupancy() (active, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(StatusActive), p.countLocked(StatusIdle) + p.countLocked(StatusWarming)
}

// Shutdown stops background loops and destroys every tracked session.
// Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.sessions {
		_ = s.Destroy()
		delete(p.sessions, id)
	}
}
