// Package coretest provides in-memory signaling endpoints for tests.
package coretest

import (
	"errors"
	"sync"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
)

var ErrClosed = errors.New("connection closed")

// Conn records every frame it accepts.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages decodes every recorded frame; undecodable frames are skipped.
func (c *Conn) Messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, 0, len(c.frames))
	for _, f := range c.frames {
		m, err := protocol.Decode(f)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// OfType returns the recorded messages of type t.
func (c *Conn) OfType(t protocol.Type) []protocol.Message {
	var out []protocol.Message
	for _, m := range c.Messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
