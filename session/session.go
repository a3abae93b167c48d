// Package session keeps per-browser state, such as temporary table
// customizations, in memory behind a cookie.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reader is the read side of a session as the bundle builder sees it.
type Reader interface {
	Check(key string) bool
	Read(key string) any
}

// Session holds the values of one browser session.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastUsed  time.Time

	values map[string]any
	sync.RWMutex
}

func newSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastUsed:  now,
		values:    map[string]any{},
	}
}

func (s *Session) Check(key string) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.values[key]
	return ok
}

func (s *Session) Read(key string) any {
	s.RLock()
	defer s.RUnlock()
	return s.values[key]
}

func (s *Session) Write(key string, v any) {
	s.Lock()
	defer s.Unlock()
	s.values[key] = v
}

func (s *Session) Delete(key string) {
	s.Lock()
	defer s.Unlock()
	delete(s.values, key)
}

func (s *Session) touch() {
	s.Lock()
	s.LastUsed = time.Now()
	s.Unlock()
}

type ctxKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by Manager.Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

const DefaultCookieName = "datatables_sid"

// Manager tracks sessions and expires the ones idle for longer than
// IdleTimeout or older than AbsTimeout.
type Manager struct {
	CookieName  string
	IdleTimeout time.Duration
	AbsTimeout  time.Duration

	sessions    map[string]*Session
	mu          sync.Mutex
	logger      *slog.Logger
	cleanupStop chan struct{}
	stopOnce    sync.Once
}

func NewManager(idleTimeout, absTimeout time.Duration) *Manager {
	return &Manager{
		CookieName:  DefaultCookieName,
		IdleTimeout: idleTimeout,
		AbsTimeout:  absTimeout,
		sessions:    map[string]*Session{},
		logger:      slog.Default(),
		cleanupStop: make(chan struct{}),
	}
}

func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	m.logger = l
	return m
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Start creates and tracks a new session.
func (m *Manager) Start() *Session {
	s := newSession()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Middleware attaches the caller's session to the request context,
// starting one and setting the cookie when there is none.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s *Session
		if c, err := r.Cookie(m.CookieName); err == nil {
			s, _ = m.Get(c.Value)
		}
		if s == nil {
			s = m.Start()
			http.SetCookie(w, &http.Cookie{
				Name:     m.CookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		s.touch()
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), s)))
	})
}

// StartCleanup expires sessions every interval until Close is called.
func (m *Manager) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				m.Cleanup(time.Now())
			case <-m.cleanupStop:
				ticker.Stop()
				return
			}
		}
	}()
}

// Cleanup drops every session expired at now.
func (m *Manager) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		s.RLock()
		expired := (m.AbsTimeout > 0 && now.Sub(s.CreatedAt) > m.AbsTimeout) ||
			(m.IdleTimeout > 0 && now.Sub(s.LastUsed) > m.IdleTimeout)
		s.RUnlock()
		if expired {
			m.logger.Info("Cleaning up expired session", "session", id)
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Close stops the cleanup routine.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.cleanupStop) })
}
