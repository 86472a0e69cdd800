package gatt

import (
	"errors"
	"sync"
)

var ErrSessionActive = errors.New("gatt: mode cannot change while a session is active")

// Selector holds the current mode. BLE sessions acquire it for their whole
// life; the mode is frozen while any session holds it.
type Selector struct {
	mu       sync.Mutex
	mode     Mode
	sessions int
}

func NewSelector(mode Mode) *Selector {
	return &Selector{mode: mode}
}

// Mode returns the current mode.
func (s *Selector) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

// SetMode switches the mode. It returns ErrSessionActive and leaves the
// mode unchanged while a session is held.
func (s *Selector) SetMode(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions > 0 {
		return ErrSessionActive
	}
	s.mode = mode

	return nil
}

// Active reports whether any session currently holds the selector.
func (s *Selector) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions > 0
}

// Acquire starts a session and returns the catalog it is bound to.
func (s *Selector) Acquire() (*Session, Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions++

	return &Session{selector: s}, CatalogFor(s.mode)
}

// Session is a hold on a Selector.
type Session struct {
	selector *Selector
	once     sync.Once
}

// Release ends the session. Calling it more than once is harmless.
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.selector.mu.Lock()
		s.selector.sessions--
		s.selector.mu.Unlock()
	})
}
