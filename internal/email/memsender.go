package email

import "sync"

// Sent is one recorded call to MemSender.Send.
type Sent struct {
	To, Subject, Body string
}

// MemSender is an in-memory Sender used by tests, standing in for SES the
// way rtdb.MemStore stands in for Redis.
type MemSender struct {
	mu   sync.Mutex
	sent []Sent
}

func NewMemSender() *MemSender {
	return &MemSender{}
}

func (m *MemSender) Send(to, subject, bodyHTML string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{To: to, Subject: subject, Body: bodyHTML})
	return nil
}

// All returns a copy of every email recorded so far.
func (m *MemSender) All() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ Sender = (*MemSender)(nil)
