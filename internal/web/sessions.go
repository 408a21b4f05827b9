package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/region-news-map/internal/newsmap"
	"github.com/DeafMist/region-news-map/internal/ttlcache"
)

// Flash queues notifications until the next render picks them up.
type Flash struct {
	mu   sync.Mutex
	msgs []string
}

// Notify implements newsmap.Notifier.
func (f *Flash) Notify(message string) {
	f.mu.Lock()
	f.msgs = append(f.msgs, message)
	f.mu.Unlock()
}

// Drain returns and clears the queued messages.
func (f *Flash) Drain() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.msgs
	f.msgs = nil
	return out
}

// Session is one browser's page.
type Session struct {
	ID    string
	Page  *newsmap.Page
	Flash *Flash
}

// PageFactory builds an unmounted page that reports to n.
type PageFactory func(n newsmap.Notifier) *newsmap.Page

// Sessions keeps a bounded set of live pages. Evicted pages are unmounted.
type Sessions struct {
	cache   *ttlcache.Cache[*Session]
	newPage PageFactory
	log     *slog.Logger
}

// NewSessions creates a store holding at most capacity sessions idle for at most ttl.
func NewSessions(capacity int, ttl time.Duration, newPage PageFactory, log *slog.Logger) *Sessions {
	s := &Sessions{newPage: newPage, log: log}
	s.cache = ttlcache.New[*Session](capacity, ttl, ttlcache.WithEvictHook(func(id string, sess *Session) {
		sess.Page.Unmount()
		s.log.Debug("session evicted", slog.String("session", id))
	}))
	return s
}

// Get returns a live session and extends its lifetime.
func (s *Sessions) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	return s.cache.Touch(id)
}

// Create mounts a fresh page under a new session id.
func (s *Sessions) Create() (*Session, error) {
	flash := &Flash{}
	page := s.newPage(flash)
	if err := page.Mount(); err != nil {
		return nil, err
	}

	sess := &Session{ID: uuid.NewString(), Page: page, Flash: flash}
	s.cache.Set(sess.ID, sess)
	s.log.Debug("session created", slog.String("session", sess.ID))
	return sess, nil
}

// Sweep unmounts and drops idle sessions.
func (s *Sessions) Sweep() {
	s.cache.Sweep()
}

// Len reports the number of held sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}
