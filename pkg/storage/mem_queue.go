package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

type memMessage struct {
	token       string
	body        []byte
	visibleAt   time.Time
	dequeued    time.Time
}

// MemQueue is an in-process, slice-backed Queue with per-message visibility
// deadlines, used for single-node operation, local development, and tests.
// It makes no delivery-order guarantee beyond what the spec requires
// (at-least-once, no FIFO across partitions).
type MemQueue struct {
	clock Clock

	mu       sync.Mutex
	messages []*memMessage
}

// NewMemQueue returns an empty MemQueue using clock for visibility-deadline
// bookkeeping.
func NewMemQueue(clock Clock) *MemQueue {
	return &MemQueue{clock: clock}
}

func (q *MemQueue) Send(ctx context.Context, msg []byte, visibility time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, &memMessage{
		token:     randToken(),
		body:      msg,
		visibleAt: q.clock.Now().Add(visibility),
	})
	return nil
}

func (q *MemQueue) Receive(ctx context.Context, max int, visibilitySec int) ([]Lease, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var leases []Lease
	for _, m := range q.messages {
		if len(leases) >= max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(time.Duration(visibilitySec) * time.Second)
		m.dequeued = now
		leases = append(leases, Lease{Token: m.token, Body: m.body, Dequeued: now})
	}
	return leases, nil
}

func (q *MemQueue) Delete(ctx context.Context, lease Lease) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.token == lease.Token {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *MemQueue) Extend(ctx context.Context, lease Lease, visibilitySec int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.token == lease.Token {
			m.visibleAt = q.clock.Now().Add(time.Duration(visibilitySec) * time.Second)
			return nil
		}
	}
	return nil
}

func (q *MemQueue) ApproxLen(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.messages)), nil
}

func randToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
