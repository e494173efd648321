package session

import (
	"sync"

	"github.com/yl5006/sitl-gazebo/pkg/core"
)

// Context holds the session currently being recorded.
type Context struct {
	mu      sync.RWMutex
	Session *core.Session
}

// NewContext creates a Context with a placeholder session.
func NewContext() *Context {
	return &Context{
		Session: &core.Session{Name: "No session started"},
	}
}

// GetSession returns the current session.
func (sc *Context) GetSession() *core.Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.Session
}

// SetSession replaces the current session.
func (sc *Context) SetSession(s *core.Session) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.Session = s
}

// ID returns the UUID of the session being recorded, "" when none is.
func (sc *Context) ID() string {
	return sc.GetSession().UUID
}
