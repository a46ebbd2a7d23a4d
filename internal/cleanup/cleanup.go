package cleanup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/types"
)

// Reclaimer deletes externally hosted media given its delivery URL.
type Reclaimer interface {
	BelongsTo(rawURL string) bool
	DestroyURL(ctx context.Context, rawURL string) error
}

// FailureRecord is the process-local retry bookkeeping for one event whose
// media could not be reclaimed yet. It is never persisted: a restart starts
// counting from scratch while the event itself stays in the store.
type FailureRecord struct {
	EventID     int       `json:"event_id"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	LastAttempt time.Time `json:"last_attempt"`
	PendingURLs []string  `json:"pending_urls"`
}

// Status is the admin view of the cleanup backlog.
type Status struct {
	Pending  []types.Event   `json:"pending"`
	Failures []FailureRecord `json:"failures"`
}

// Engine retires expired events: once an event's end is in the past its
// hosted media is deleted and only then is the event dropped from the
// store. Failed reclamations are retried on every subsequent sweep,
// indefinitely.
type Engine struct {
	store *storage.Store
	media Reclaimer
	log   *slog.Logger
	now   func() time.Time

	sweeping atomic.Bool

	mu       sync.Mutex
	failures map[int]FailureRecord
}

func NewEngine(store *storage.Store, media Reclaimer, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		media:    media,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		failures: make(map[int]FailureRecord),
	}
}

// Sweep runs one cleanup pass. A sweep already in progress makes the call a
// no-op (returns false) rather than queueing; both the request-path trigger
// and the timer go through this guard.
func (e *Engine) Sweep(ctx context.Context) bool {
	if !e.sweeping.CompareAndSwap(false, true) {
		return false
	}
	defer e.sweeping.Store(false)

	started := e.now()
	var reclaimed []int
	for _, ev := range e.store.Events() {
		if !ev.EndsAt.Before(started) {
			continue
		}

		if pending, err := e.reclaim(ctx, ev); err != nil {
			e.recordFailure(ev.ID, pending, err)
			e.log.Error("media reclamation failed, keeping event",
				slog.Int("event_id", ev.ID),
				slog.String("error", err.Error()))
			continue
		}
		e.clearFailure(ev.ID)
		reclaimed = append(reclaimed, ev.ID)
	}

	// one store write per sweep, and only when something was reclaimed
	if len(reclaimed) > 0 {
		removed, err := e.store.RemoveEvents(reclaimed)
		if err != nil {
			e.log.Error("failed to remove reclaimed events", slog.String("error", err.Error()))
			return true
		}
		e.log.Info("cleanup sweep removed expired events",
			slog.Int("removed", removed),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()))
	}
	return true
}

// reclaim deletes the event's provider-hosted media, video first then
// poster. It returns the URLs still pending together with the first error.
func (e *Engine) reclaim(ctx context.Context, ev types.Event) ([]string, error) {
	var urls []string
	for _, u := range []string{ev.MediaURL, ev.PosterURL} {
		if u != "" && e.media.BelongsTo(u) {
			urls = append(urls, u)
		}
	}

	for i, u := range urls {
		if err := e.media.DestroyURL(ctx, u); err != nil {
			return urls[i:], err
		}
	}
	return nil, nil
}

func (e *Engine) recordFailure(eventID int, pending []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.failures[eventID]
	rec.EventID = eventID
	rec.Attempts++
	rec.LastError = err.Error()
	rec.LastAttempt = e.now()
	rec.PendingURLs = pending
	e.failures[eventID] = rec
}

func (e *Engine) clearFailure(eventID int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.failures, eventID)
}

// Status reports the expired-but-not-yet-reclaimed events and the current
// failure backlog.
func (e *Engine) Status() Status {
	now := e.now()

	status := Status{Pending: []types.Event{}, Failures: []FailureRecord{}}
	for _, ev := range e.store.Events() {
		if ev.EndsAt.Before(now) {
			status.Pending = append(status.Pending, ev)
		}
	}

	e.mu.Lock()
	for _, rec := range e.failures {
		status.Failures = append(status.Failures, rec)
	}
	e.mu.Unlock()

	sort.Slice(status.Failures, func(i, j int) bool {
		return status.Failures[i].EventID < status.Failures[j].EventID
	})
	return status
}

// Run sweeps once immediately and then on every tick until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("cleanup engine started", slog.String("interval", interval.String()))

	e.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("cleanup engine shutting down")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
