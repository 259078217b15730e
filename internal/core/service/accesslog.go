package service

import (
	"sync"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// DefaultAuditCapacity is the number of denials kept by default.
const DefaultAuditCapacity = 1000

// AccessLog is a fixed-capacity ring of denial events. When full, the
// oldest event is overwritten.
type AccessLog struct {
	mu   sync.Mutex
	buf  []domain.AccessEvent
	next int
	full bool
}

// NewAccessLog creates a log holding at most capacity events.
func NewAccessLog(capacity int) *AccessLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AccessLog{buf: make([]domain.AccessEvent, capacity)}
}

// Append adds an event.
func (l *AccessLog) Append(e domain.AccessEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(e)
}

func (l *AccessLog) appendLocked(e domain.AccessEvent) {
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
}

// appendCounting counts the events of e's kind at or after sinceMs, marks
// e as a burst when that count including e exceeds threshold, and appends
// it. Counting and appending happen under one lock.
func (l *AccessLog) appendCounting(e domain.AccessEvent, sinceMs int64, threshold int) (domain.AccessEvent, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 1
	l.eachLocked(func(prev domain.AccessEvent) {
		if prev.PrincipalKind == e.PrincipalKind && prev.Timestamp >= sinceMs {
			count++
		}
	})
	e.Burst = count > threshold
	l.appendLocked(e)
	return e, count
}

// eachLocked visits events oldest first.
func (l *AccessLog) eachLocked(fn func(domain.AccessEvent)) {
	if l.full {
		for _, e := range l.buf[l.next:] {
			fn(e)
		}
	}
	for _, e := range l.buf[:l.next] {
		fn(e)
	}
}

// Events returns a copy of the log, oldest first.
func (l *AccessLog) Events() []domain.AccessEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AccessEvent, 0, l.lenLocked())
	l.eachLocked(func(e domain.AccessEvent) { out = append(out, e) })
	return out
}

// Len returns the number of stored events.
func (l *AccessLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lenLocked()
}

func (l *AccessLog) lenLocked() int {
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Cap returns the log capacity.
func (l *AccessLog) Cap() int {
	return len(l.buf)
}
