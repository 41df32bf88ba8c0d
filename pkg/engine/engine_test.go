package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/invoiceflow/invoiceflow/internal/model"
	"github.com/invoiceflow/invoiceflow/pkg/place"
)

// --- fakes ---

type fakeExtractor struct {
	mu       sync.Mutex
	invoices map[string]*model.Invoice
	fail     map[string]error
	calls    []string
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		invoices: make(map[string]*model.Invoice),
		fail:     make(map[string]error),
	}
}

func (f *fakeExtractor) add(id string) *model.Invoice {
	inv := &model.Invoice{Number: "N-" + id}
	f.invoices[id] = inv
	return inv
}

func (f *fakeExtractor) Extract(_ context.Context, ref model.ArtifactRef) (*model.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref.ID)
	if err := f.fail[ref.ID]; err != nil {
		return nil, err
	}
	inv, ok := f.invoices[ref.ID]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", ref.ID)
	}
	return inv, nil
}

type sinkEntry struct {
	invoice  *model.Invoice
	place    string
	customer string
}

type recordSink struct {
	mu      sync.Mutex
	entries []sinkEntry
	err     error
}

func (s *recordSink) Append(_ context.Context, inv *model.Invoice, place, customer string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.entries = append(s.entries, sinkEntry{invoice: inv, place: place, customer: customer})
	return "report.xlsx", nil
}

func (s *recordSink) all() []sinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type recordNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordNotifier) Notify(_ context.Context, _ string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

// --- harness ---

type harness struct {
	engine    *Engine
	extractor *fakeExtractor
	sink      *recordSink
	notifier  *recordNotifier
	places    *place.MemoryStore
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		extractor: newFakeExtractor(),
		sink:      &recordSink{},
		notifier:  &recordNotifier{},
		places:    place.NewMemoryStore(),
	}
	h.engine = New(cfg, h.extractor, h.sink, h.places, h.notifier)
	t.Cleanup(h.engine.Stop)
	return h
}

// longDebounce keeps timers from firing during synchronous FlushNow tests.
func longDebounce() Config {
	return Config{Debounce: time.Hour, BurstTTL: time.Hour}
}

func artifact(id string, ts time.Time) model.Event {
	return model.NewArtifactEvent(model.ArtifactRef{
		ID:          id,
		DisplayName: id + ".xlsx",
		Path:        "/inbox/" + id + ".xlsx",
	}, ts)
}

var epoch = time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

// --- tests ---

func TestEngine_PairsInFIFOOrder(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	inv1 := h.extractor.add("a1")
	inv2 := h.extractor.add("a2")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.Submit(ctx, "u1", artifact("a2", at(2)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Karimov", at(3)))
	h.engine.FlushNow(ctx, "u1")

	entries := h.sink.all()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].invoice != inv1 || entries[0].customer != "Aziz" {
		t.Errorf("first pair = (%v, %q)", entries[0].invoice, entries[0].customer)
	}
	if entries[1].invoice != inv2 || entries[1].customer != "Karimov" {
		t.Errorf("second pair = (%v, %q)", entries[1].invoice, entries[1].customer)
	}
	if got := h.notifier.all(); len(got) != 0 {
		t.Errorf("unexpected notifications: %v", got)
	}
}

func TestEngine_SortsByTimestampNotArrival(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.extractor.add("a1")
	h.extractor.add("a2")
	h.places.Set(ctx, "u1", "Toshkent")

	// Arrival order is scrambled; timestamps define the true order
	// a1, Aziz, a2, Karimov.
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Karimov", at(3)))
	h.engine.Submit(ctx, "u1", artifact("a2", at(2)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.FlushNow(ctx, "u1")

	entries := h.sink.all()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].invoice.Number != "N-a1" || entries[0].customer != "Aziz" {
		t.Errorf("first pair = (%s, %q)", entries[0].invoice.Number, entries[0].customer)
	}
	if entries[1].invoice.Number != "N-a2" || entries[1].customer != "Karimov" {
		t.Errorf("second pair = (%s, %q)", entries[1].invoice.Number, entries[1].customer)
	}
}

func TestEngine_DebounceCollapsesToOneBatch(t *testing.T) {
	h := newHarness(t, Config{Debounce: 30 * time.Millisecond, BurstTTL: time.Hour})
	ctx := context.Background()

	h.extractor.add("a1")
	h.extractor.add("a2")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.Submit(ctx, "u1", artifact("a2", at(2)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Karimov", at(3)))

	time.Sleep(200 * time.Millisecond)

	entries := h.sink.all()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want one batch of 2", len(entries))
	}
	if entries[0].customer != "Aziz" || entries[1].customer != "Karimov" {
		t.Errorf("pairs = %q, %q", entries[0].customer, entries[1].customer)
	}
}

func TestEngine_ForcedFlushStalesOutTimer(t *testing.T) {
	h := newHarness(t, Config{Debounce: 50 * time.Millisecond, BurstTTL: time.Hour})
	ctx := context.Background()

	h.extractor.add("a1")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.FlushNow(ctx, "u1")

	if got := len(h.sink.all()); got != 1 {
		t.Fatalf("entries after forced flush = %d, want 1", got)
	}

	// The debounce timer from the last Submit fires into an empty,
	// invalidated window and must do nothing.
	time.Sleep(200 * time.Millisecond)
	if got := len(h.sink.all()); got != 1 {
		t.Errorf("entries after timer = %d, want still 1", got)
	}
}

func TestEngine_LabelWithoutArtifactIsDiscarded(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(0)))
	h.engine.FlushNow(ctx, "u1")

	if got := len(h.sink.all()); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
	if got := h.notifier.all(); len(got) != 0 {
		t.Errorf("unexpected notifications: %v", got)
	}
}

func TestEngine_LabelsDoNotCarryAcrossBatches(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.extractor.add("a1")
	h.places.Set(ctx, "u1", "Toshkent")

	// First batch is a lone label. It settles without pairing.
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(0)))
	h.engine.FlushNow(ctx, "u1")

	// Second batch is a lone artifact. The old label must not pair with it.
	h.engine.Submit(ctx, "u1", artifact("a1", at(10)))
	h.engine.FlushNow(ctx, "u1")

	if got := len(h.sink.all()); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "a1.xlsx") {
		t.Errorf("notifications = %v, want one unmatched-file notice", msgs)
	}
}

func TestEngine_NonNameTextIsIgnored(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	inv := h.extractor.add("a1")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("dap Toshkent, г. Chirchiq", at(1)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("order 12345", at(2)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Mijoz: Aziz", at(3)))
	h.engine.FlushNow(ctx, "u1")

	entries := h.sink.all()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].invoice != inv || entries[0].customer != "Aziz" {
		t.Errorf("pair = (%v, %q), want (inv, Aziz)", entries[0].invoice, entries[0].customer)
	}
}

func TestEngine_EndOfBurstDropsBufferedEvents(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.extractor.add("a1")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.Submit(ctx, "u1", model.NewEndOfBurstEvent(at(2)))
	h.engine.FlushNow(ctx, "u1")

	if got := len(h.sink.all()); got != 0 {
		t.Errorf("entries = %d, want 0 after abort", got)
	}
	if got := h.notifier.all(); len(got) != 0 {
		t.Errorf("unexpected notifications: %v", got)
	}
}

func TestEngine_DefersUntilPlaceArrives(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	inv1 := h.extractor.add("a1")
	inv2 := h.extractor.add("a2")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Mijoz: Aziz", at(1)))
	h.engine.Submit(ctx, "u1", artifact("a2", at(2)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Karimov", at(3)))
	h.engine.FlushNow(ctx, "u1")

	if got := len(h.sink.all()); got != 0 {
		t.Fatalf("entries = %d, want 0 before a place is known", got)
	}
	awaiting := h.engine.Awaiting("u1")
	if len(awaiting) != 2 {
		t.Fatalf("awaiting = %d, want 2", len(awaiting))
	}
	if awaiting[0].Invoice != inv1 || awaiting[0].Customer != "Aziz" {
		t.Errorf("awaiting[0] = (%v, %q)", awaiting[0].Invoice, awaiting[0].Customer)
	}
	if awaiting[1].Invoice != inv2 || awaiting[1].Customer != "Karimov" {
		t.Errorf("awaiting[1] = (%v, %q)", awaiting[1].Invoice, awaiting[1].Customer)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "place") {
		t.Errorf("notifications = %v, want only the place prompt", msgs)
	}

	n := h.engine.ResolvePlace(ctx, "u1", "SIRDARYO")
	if n != 2 {
		t.Fatalf("ResolvePlace = %d, want 2", n)
	}
	entries := h.sink.all()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 after resolution", len(entries))
	}
	if entries[0].place != "SIRDARYO" || entries[0].customer != "Aziz" {
		t.Errorf("entries[0] = (%q, %q)", entries[0].place, entries[0].customer)
	}
	if entries[1].customer != "Karimov" {
		t.Errorf("entries[1].customer = %q", entries[1].customer)
	}

	// Resolving again with nothing awaiting is a no-op.
	if n := h.engine.ResolvePlace(ctx, "u1", "SIRDARYO"); n != 0 {
		t.Errorf("second ResolvePlace = %d, want 0", n)
	}
	if got := len(h.sink.all()); got != 2 {
		t.Errorf("entries = %d after no-op resolution, want 2", got)
	}
}

func TestEngine_UnmatchedTrailingArtifactIsReported(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.extractor.add("a1")
	h.extractor.add("a3")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.Submit(ctx, "u1", artifact("a3", at(2)))
	h.engine.FlushNow(ctx, "u1")

	entries := h.sink.all()
	if len(entries) != 1 || entries[0].customer != "Aziz" {
		t.Fatalf("entries = %v, want one Aziz pair", entries)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "a3.xlsx") {
		t.Errorf("notifications = %v, want one notice naming a3.xlsx", msgs)
	}
}

func TestEngine_ExtractionFailureIsIsolated(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.extractor.add("a1")
	h.extractor.fail["a1"] = fmt.Errorf("corrupt workbook")
	inv2 := h.extractor.add("a2")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Aziz", at(1)))
	h.engine.Submit(ctx, "u1", artifact("a2", at(2)))
	h.engine.Submit(ctx, "u1", model.NewLabelEvent("Karimov", at(3)))
	h.engine.FlushNow(ctx, "u1")

	entries := h.sink.all()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want the surviving pair only", len(entries))
	}
	if entries[0].invoice != inv2 || entries[0].customer != "Karimov" {
		t.Errorf("survivor = (%v, %q)", entries[0].invoice, entries[0].customer)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "a1.xlsx") {
		t.Errorf("notifications = %v, want one failure notice for a1.xlsx", msgs)
	}
}

func TestEngine_UsersAreIsolated(t *testing.T) {
	h := newHarness(t, longDebounce())
	ctx := context.Background()

	h.extractor.add("a1")
	h.places.Set(ctx, "u1", "Toshkent")

	h.engine.Submit(ctx, "u1", artifact("a1", at(0)))
	h.engine.Submit(ctx, "u2", model.NewLabelEvent("Aziz", at(1)))
	h.engine.FlushNow(ctx, "u1")
	h.engine.FlushNow(ctx, "u2")

	// u2's label must not pair with u1's artifact.
	if got := len(h.sink.all()); got != 0 {
		t.Fatalf("entries = %d, want 0", got)
	}
	msgs := h.notifier.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "a1.xlsx") {
		t.Errorf("notifications = %v", msgs)
	}
}
