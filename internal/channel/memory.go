package channel

import (
	"context"
	"sync"
)

// Memory is an in-memory Sender for tests and dry runs. Each call pops the
// next scripted error (nil means success); once the script is exhausted all
// sends succeed.
type Memory struct {
	mu     sync.Mutex
	script []error
	sent   []Payload
	seq    int
}

// NewMemory returns a Memory sender that fails with the given errors in
// order, then succeeds.
func NewMemory(script ...error) *Memory {
	return &Memory{script: append([]error(nil), script...)}
}

func (m *Memory) Send(_ context.Context, _ Target, p Payload) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if len(m.script) > 0 {
		err = m.script[0]
		m.script = m.script[1:]
	}
	if err != nil {
		return MessageRef{}, err
	}
	m.seq++
	m.sent = append(m.sent, p)
	return MessageRef{MessageID: m.seq}, nil
}

// Sent returns a copy of all successfully delivered payloads.
func (m *Memory) Sent() []Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payload(nil), m.sent...)
}
