// Package prompt implements a timed multiple-choice interaction: present a
// fixed set of labeled indicators on a message, wait for exactly one
// qualifying response within a deadline, and clean up whatever the outcome.
package prompt

import (
	"sync"
	"time"
)

// DefaultTimeout bounds the single-shot wait for a response.
const DefaultTimeout = 10 * time.Second

// Presenter attaches and clears the selectable indicators on a surface.
// Clearing is cosmetic; failures are swallowed by the implementation.
type Presenter interface {
	Present(channelID, surfaceID string, tokens []string) error
	Clear(channelID, surfaceID string)
}

// Prompt describes one armed interaction. A response qualifies only when
// its surface, author, and token all match.
type Prompt struct {
	ChannelID   string
	SurfaceID   string
	RequesterID string
	Tokens      []string
	Timeout     time.Duration
}

func (p *Prompt) validToken(token string) bool {
	for _, t := range p.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// Response is one inbound indicator event from the gateway.
type Response struct {
	SurfaceID string
	AuthorID  string
	Token     string
}

// Manager tracks armed prompts and routes gateway responses to them.
type Manager struct {
	mu        sync.Mutex
	armed     map[string]*waiter
	presenter Presenter
}

type waiter struct {
	prompt Prompt
	ch     chan string
}

func NewManager(presenter Presenter) *Manager {
	return &Manager{
		armed:     make(map[string]*waiter),
		presenter: presenter,
	}
}

// Await arms the prompt and blocks until a qualifying response arrives or
// the deadline elapses. It returns the selected token and whether the
// prompt resolved; on expiry no action token is returned. Either way the
// indicators are cleared and the prompt is disarmed, so a late or duplicate
// response is ignored.
func (m *Manager) Await(p Prompt) (string, bool) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	w := &waiter{prompt: p, ch: make(chan string, 1)}

	m.mu.Lock()
	m.armed[p.SurfaceID] = w
	m.mu.Unlock()

	// Indicators are attached after arming so a fast responder still
	// qualifies. Presentation errors do not abort the wait.
	_ = m.presenter.Present(p.ChannelID, p.SurfaceID, p.Tokens)

	defer m.presenter.Clear(p.ChannelID, p.SurfaceID)

	select {
	case token := <-w.ch:
		return token, true
	case <-time.After(timeout):
		m.mu.Lock()
		delete(m.armed, p.SurfaceID)
		m.mu.Unlock()
		// A response that won the race against the deadline still counts.
		select {
		case token := <-w.ch:
			return token, true
		default:
		}
		return "", false
	}
}

// HandleResponse routes one gateway response. Non-qualifying responses are
// ignored and do not extend the deadline; the first qualifying one disarms
// the prompt so it resolves exactly once.
func (m *Manager) HandleResponse(r Response) {
	m.mu.Lock()
	w, ok := m.armed[r.SurfaceID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if r.AuthorID != w.prompt.RequesterID || !w.prompt.validToken(r.Token) {
		m.mu.Unlock()
		return
	}
	delete(m.armed, r.SurfaceID)
	m.mu.Unlock()

	w.ch <- r.Token
}
