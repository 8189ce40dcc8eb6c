package update

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Level of an inline message
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Message is the inline status line shown under the update controls
type Message struct {
	Level Level
	Text  string
}

// Notice holds the current message and clears it after a fixed delay
type Notice struct {
	clock   clock.Clock
	timeout time.Duration

	mu       sync.Mutex
	msg      *Message
	gen      uint64
	timer    *clock.Timer
	onChange func(*Message)
}

// NewNotice returns an empty notice that clears itself after timeout
func NewNotice(clk clock.Clock, timeout time.Duration) *Notice {
	return &Notice{clock: clk, timeout: timeout}
}

// OnChange registers fn to be called with every new message, and with nil
// when the message is cleared
func (n *Notice) OnChange(fn func(*Message)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onChange = fn
}

func (n *Notice) Info(text string) {
	n.set(Message{Level: LevelInfo, Text: text})
}

func (n *Notice) Error(text string) {
	n.set(Message{Level: LevelError, Text: text})
}

func (n *Notice) set(m Message) {
	n.mu.Lock()
	n.msg = &m
	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = n.clock.AfterFunc(n.timeout, func() { n.expire(gen) })
	fn := n.onChange
	n.mu.Unlock()

	if fn != nil {
		fn(&m)
	}
}

// expire clears the message set at generation gen, unless a newer one
// replaced it meanwhile
func (n *Notice) expire(gen uint64) {
	n.mu.Lock()
	stale := gen != n.gen
	n.mu.Unlock()
	if !stale {
		n.Clear()
	}
}

// Clear removes the current message
func (n *Notice) Clear() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	had := n.msg != nil
	n.msg = nil
	fn := n.onChange
	n.mu.Unlock()

	if had && fn != nil {
		fn(nil)
	}
}

// Current returns the message being shown, if any
func (n *Notice) Current() (Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.msg == nil {
		return Message{}, false
	}
	return *n.msg, true
}
