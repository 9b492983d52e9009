package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"meshgate/internal/utils"

	"github.com/rs/zerolog"
)

// Save kinds
const (
	SaveRules  = "rules"
	SaveAuth   = "auth"
	SaveConfig = "config"
)

// FlushFunc writes everything pending for one kind
type FlushFunc func(ctx context.Context) error

type pendingSave struct {
	deadline time.Time
	timer    *time.Timer
}

// SaveQueue coalesces save requests. Every kind has at most one pending
// flush; a request due later than the pending one is absorbed, a request
// due earlier moves the flush forward.
type SaveQueue struct {
	mu      sync.Mutex
	flushes map[string]FlushFunc
	pending map[string]*pendingSave
	timeout time.Duration
	now     func() time.Time
	log     *zerolog.Logger
}

// NewSaveQueue creates an empty save queue
func NewSaveQueue() *SaveQueue {
	return &SaveQueue{
		flushes: make(map[string]FlushFunc),
		pending: make(map[string]*pendingSave),
		timeout: 30 * time.Second,
		now:     time.Now,
		log:     utils.Logger("db"),
	}
}

// Register sets the flush function of a kind
func (q *SaveQueue) Register(kind string, fn FlushFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushes[kind] = fn
}

// QueSave requests a flush of kind within delay
func (q *SaveQueue) QueSave(kind string, delay time.Duration) {
	deadline := q.now().Add(delay)
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.pending[kind]; ok {
		if !deadline.Before(p.deadline) {
			return
		}
		p.timer.Stop()
	}
	q.pending[kind] = &pendingSave{
		deadline: deadline,
		timer:    time.AfterFunc(delay, func() { q.fire(kind, deadline) }),
	}
}

// Pending reports when the next flush of kind is due
func (q *SaveQueue) Pending(kind string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.pending[kind]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

func (q *SaveQueue) fire(kind string, deadline time.Time) {
	q.mu.Lock()
	p, ok := q.pending[kind]
	if !ok || !p.deadline.Equal(deadline) {
		q.mu.Unlock()
		return
	}
	delete(q.pending, kind)
	fn := q.flushes[kind]
	q.mu.Unlock()

	if fn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		q.log.Error().Err(err).Str("kind", kind).Msg("save failed, retrying later")
		q.QueSave(kind, utils.ShortSaveDelay)
		return
	}
	q.log.Debug().Str("kind", kind).Msg("saved")
}

// FlushAll cancels pending timers and runs every registered flush
func (q *SaveQueue) FlushAll(ctx context.Context) error {
	q.mu.Lock()
	for kind, p := range q.pending {
		p.timer.Stop()
		delete(q.pending, kind)
	}
	fns := make(map[string]FlushFunc, len(q.flushes))
	for k, fn := range q.flushes {
		fns[k] = fn
	}
	q.mu.Unlock()

	var errs []error
	for kind, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
			q.log.Error().Err(err).Str("kind", kind).Msg("final save failed")
		}
	}
	return errors.Join(errs...)
}
