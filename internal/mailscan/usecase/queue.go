package usecase

import (
	"context"
	"time"

	"subtrack-backend/internal/mailscan/domain"
)

// Lane is a priority level for pending classification work
type Lane int

const (
	LaneHigh Lane = iota
	LaneNormal
	LaneLow
	laneCount
)

func (l Lane) String() string {
	switch l {
	case LaneHigh:
		return "high"
	case LaneNormal:
		return "normal"
	default:
		return "low"
	}
}

// LaneFor assigns priority from message age: same-day mail is High, mail from
// the past week Normal, everything older Low.
func LaneFor(receivedAt, now time.Time) Lane {
	age := now.Sub(receivedAt)
	switch {
	case age < 24*time.Hour:
		return LaneHigh
	case age < 7*24*time.Hour:
		return LaneNormal
	default:
		return LaneLow
	}
}

// WorkItem pairs a ledger entry with the message body it was created from.
// Bodies ride along in memory; the ledger never stores them.
type WorkItem struct {
	Metadata *domain.EmailMetadata
	Body     string
}

// PriorityQueue is a three-lane multi-producer/single-consumer queue. Lanes
// are bounded; a producer blocks rather than drops when its lane is full. The
// consumer drains High before Normal before Low and parks on a coalesced wake
// signal instead of polling.
type PriorityQueue struct {
	lanes [laneCount]chan *WorkItem
	wake  chan struct{}
}

func NewPriorityQueue(capacity int) *PriorityQueue {
	if capacity <= 0 {
		capacity = 100
	}
	q := &PriorityQueue{wake: make(chan struct{}, 1)}
	for i := range q.lanes {
		q.lanes[i] = make(chan *WorkItem, capacity)
	}
	return q
}

// Enqueue places an item on the given lane, blocking while the lane is full
func (q *PriorityQueue) Enqueue(ctx context.Context, lane Lane, item *WorkItem) error {
	select {
	case q.lanes[lane] <- item:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Coalesced signal: a dropped send means a wakeup is already pending,
	// and the item is in its lane before the signal fires.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue returns the next item in priority order, blocking until work
// arrives on any lane or the context is cancelled.
func (q *PriorityQueue) Dequeue(ctx context.Context) (*WorkItem, error) {
	for {
		for lane := LaneHigh; lane < laneCount; lane++ {
			select {
			case item := <-q.lanes[lane]:
				return item, nil
			default:
			}
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the total number of queued items across lanes
func (q *PriorityQueue) Len() int {
	n := 0
	for i := range q.lanes {
		n += len(q.lanes[i])
	}
	return n
}
