// Package engine reconstructs (invoice, customer) work units from
// unordered per-user event bursts.
//
// Events are buffered per user, debounced, time-sorted, and paired FIFO:
// the oldest unmatched artifact with the oldest unmatched label. A label
// is only admitted while an artifact is already pending, so stray chat
// text cannot masquerade as a customer. Matched pairs finalize against the
// user's default place, or wait in the deferred store until a place
// arrives.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/invoiceflow/invoiceflow/internal/model"
	"github.com/invoiceflow/invoiceflow/pkg/burst"
	"github.com/invoiceflow/invoiceflow/pkg/classify"
	"github.com/invoiceflow/invoiceflow/pkg/extract"
	"github.com/invoiceflow/invoiceflow/pkg/notify"
	"github.com/invoiceflow/invoiceflow/pkg/place"
	"github.com/invoiceflow/invoiceflow/pkg/report"
)

// Config controls burst windowing.
type Config struct {
	// Debounce is the quiet period that ends a burst.
	Debounce time.Duration

	// BurstTTL bounds how long an abandoned window survives before a new
	// event replaces it wholesale.
	BurstTTL time.Duration
}

// DefaultConfig returns the windowing defaults.
func DefaultConfig() Config {
	return Config{
		Debounce: time.Second,
		BurstTTL: 12 * time.Second,
	}
}

// Engine is the burst-debounce and FIFO-pairing engine. One instance
// serves all users; per-user state is isolated and per-user flushes are
// serialized by a per-user lock.
type Engine struct {
	cfg Config

	store *burst.Store
	sched *burst.Scheduler

	extractor extract.Extractor
	sink      report.Sink
	places    place.Store
	notifier  notify.Notifier

	tracer trace.Tracer

	mu         sync.Mutex
	flushLocks map[string]*sync.Mutex

	awaiting *awaitingStore
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer enables tracing of flush and finalize.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithStoreOptions forwards options to the burst store (tests use this to
// inject a clock).
func WithStoreOptions(opts ...burst.StoreOption) Option {
	return func(e *Engine) {
		e.store = burst.NewStore(e.cfg.BurstTTL, opts...)
	}
}

// New creates an engine wired to its collaborators.
func New(cfg Config, extractor extract.Extractor, sink report.Sink, places place.Store, notifier notify.Notifier, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		store:      burst.NewStore(cfg.BurstTTL),
		extractor:  extractor,
		sink:       sink,
		places:     places,
		notifier:   notifier,
		flushLocks: make(map[string]*sync.Mutex),
		awaiting:   newAwaitingStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = burst.NewScheduler(cfg.Debounce, e.fire)
	return e
}

// Stop cancels all pending debounce timers. Buffered events are left in
// place; state is session-scoped by design.
func (e *Engine) Stop() {
	e.sched.Stop()
}

// Submit ingests one event from the transport. It never blocks on I/O or
// on a flush in progress: buffering is a map append and timer re-arm.
func (e *Engine) Submit(_ context.Context, user string, ev model.Event) {
	if ev.Kind == model.KindEndOfBurst {
		e.store.Clear(user)
		e.sched.Cancel(user)
		return
	}
	version := e.store.Add(user, ev)
	e.sched.OnEvent(user, version)
}

// FlushNow forces the user's buffered events through processing
// immediately, superseding any pending timer.
func (e *Engine) FlushNow(ctx context.Context, user string) {
	lk := e.userLock(user)
	lk.Lock()
	defer lk.Unlock()

	e.store.Invalidate(user)
	e.sched.Cancel(user)

	events := e.store.TakeSnapshotAndClear(user)
	if len(events) == 0 {
		return
	}
	e.process(ctx, user, events)
}

// ResolvePlace finalizes every pair awaiting a place for the user, in
// pairing order, against value. A no-op when nothing is awaiting.
// Returns the number of pairs finalized.
func (e *Engine) ResolvePlace(ctx context.Context, user, value string) int {
	lk := e.userLock(user)
	lk.Lock()
	defer lk.Unlock()

	pairs := e.awaiting.Take(user)
	for _, pair := range pairs {
		if _, err := e.sink.Append(ctx, pair.Invoice, value, pair.Customer); err != nil {
			log.Printf("engine: report append failed for user=%s customer=%s: %v", user, pair.Customer, err)
			e.notifier.Notify(ctx, user, fmt.Sprintf("Failed to write report entry for %s: %v", pair.Customer, err))
		}
	}
	return len(pairs)
}

// HasAwaiting reports whether pairs are waiting on a place for the user.
func (e *Engine) HasAwaiting(user string) bool {
	return e.awaiting.Len(user) > 0
}

// Awaiting returns a copy of the user's deferred pairs, in pairing order.
func (e *Engine) Awaiting(user string) []model.PendingPair {
	return e.awaiting.Snapshot(user)
}

// userLock returns the per-user flush lock, creating it on first use.
func (e *Engine) userLock(user string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lk, ok := e.flushLocks[user]
	if !ok {
		lk = &sync.Mutex{}
		e.flushLocks[user] = lk
	}
	return lk
}

// fire runs when a debounce timer elapses. The version check makes
// superseded timers no-ops, so at most one firing per burst does work.
func (e *Engine) fire(user string, version uint64) {
	lk := e.userLock(user)
	lk.Lock()
	defer lk.Unlock()

	if e.store.Version(user) != version {
		return // stale: a newer event re-armed the timer
	}
	events := e.store.TakeSnapshotAndClear(user)
	if len(events) == 0 {
		return
	}
	e.process(context.Background(), user, events)
}

// process consumes one flushed batch. Caller holds the user's flush lock.
func (e *Engine) process(ctx context.Context, user string, events []model.Event) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.process",
			trace.WithAttributes(
				attribute.String("user", user),
				attribute.Int("batch.size", len(events)),
			))
		defer span.End()
	}

	// Transport may deliver slightly out of order; arrival order breaks
	// ties.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	// Fresh queues per batch: labels from a settled batch must never pair
	// with this batch's artifacts, and leftovers do not carry forward.
	var pendingArtifacts []model.ArtifactRef
	var pendingLabels []string

	drain := func() {
		for len(pendingArtifacts) > 0 && len(pendingLabels) > 0 {
			ref := pendingArtifacts[0]
			pendingArtifacts = pendingArtifacts[1:]
			customer := pendingLabels[0]
			pendingLabels = pendingLabels[1:]
			e.finalize(ctx, user, ref, customer)
		}
	}

	for _, ev := range events {
		switch ev.Kind {
		case model.KindArtifact:
			pendingArtifacts = append(pendingArtifacts, ev.Artifact)
			drain()
		case model.KindLabel:
			name, ok := classify.Classify(ev.Text)
			if !ok {
				continue
			}
			// A label with no waiting artifact is not a pairing
			// candidate; discarding it keeps arbitrary chat text from
			// being misread as a customer.
			if len(pendingArtifacts) == 0 {
				continue
			}
			pendingLabels = append(pendingLabels, name)
			drain()
		}
	}

	for _, ref := range pendingArtifacts {
		e.notifier.Notify(ctx, user, fmt.Sprintf("No customer text found for %s. Send the customer name after the file.", ref.DisplayName))
	}
	if len(pendingLabels) > 0 {
		e.notifier.Notify(ctx, user, "Some customer names had no matching file. Send the file first, then the customer.")
	}

	// Pairs are waiting and no default place is set: ask once per batch.
	if e.awaiting.Len(user) > 0 {
		if _, ok, err := e.places.Get(ctx, user); err == nil && !ok {
			e.notifier.Notify(ctx, user, "Enter the unloading place (e.g. SIRDARYO) to finish the pending entries.")
		}
	}
}

// finalize settles one matched pair: extract, then either write through
// with the default place or defer until a place arrives. Failures are
// isolated to the pair.
func (e *Engine) finalize(ctx context.Context, user string, ref model.ArtifactRef, customer string) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.finalize",
			trace.WithAttributes(
				attribute.String("user", user),
				attribute.String("artifact", ref.DisplayName),
			))
		defer span.End()
	}

	inv, err := e.extractor.Extract(ctx, ref)
	if err != nil {
		log.Printf("engine: extraction failed for user=%s file=%s: %v", user, ref.DisplayName, err)
		e.notifier.Notify(ctx, user, fmt.Sprintf("Failed to read invoice %s: %v", ref.DisplayName, err))
		return
	}

	placeValue, ok, err := e.places.Get(ctx, user)
	if err != nil {
		// Store unavailable: defer rather than lose the pair.
		log.Printf("engine: place lookup failed for user=%s: %v", user, err)
		ok = false
	}

	if !ok {
		e.awaiting.Add(user, model.PendingPair{Invoice: inv, Customer: customer})
		return
	}

	if _, err := e.sink.Append(ctx, inv, placeValue, customer); err != nil {
		log.Printf("engine: report append failed for user=%s customer=%s: %v", user, customer, err)
		e.notifier.Notify(ctx, user, fmt.Sprintf("Failed to write report entry for %s: %v", customer, err))
	}
}
