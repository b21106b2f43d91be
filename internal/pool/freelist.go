package pool

import (
	"github.com/eapache/queue"
)

// freeList holds the free instances in reuse order.
type freeList interface {
	push(e *entry)
	pop() *entry
	len() int
}

func newFreeList(d Discipline) freeList {
	if d == Queue {
		return &fifo{q: queue.New()}
	}
	return &lifo{}
}

type lifo struct {
	items []*entry
}

func (l *lifo) push(e *entry) { l.items = append(l.items, e) }

func (l *lifo) pop() *entry {
	n := len(l.items) - 1
	if n < 0 {
		return nil
	}
	e := l.items[n]
	l.items[n] = nil
	l.items = l.items[:n]
	return e
}

func (l *lifo) len() int { return len(l.items) }

type fifo struct {
	q *queue.Queue
}

func (f *fifo) push(e *entry) { f.q.Add(e) }

func (f *fifo) pop() *entry {
	if f.q.Length() == 0 {
		return nil
	}
	return f.q.Remove().(*entry)
}

func (f *fifo) len() int { return f.q.Length() }
