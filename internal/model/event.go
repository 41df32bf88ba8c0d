// Package model defines core data structures for InvoiceFlow.
package model

import "time"

// EventKind discriminates the event union.
type EventKind uint8

const (
	// KindArtifact is an inbound invoice workbook reference.
	KindArtifact EventKind = iota

	// KindLabel is free text that may name a customer.
	KindLabel

	// KindEndOfBurst is an explicit user abort of the current burst.
	KindEndOfBurst
)

func (k EventKind) String() string {
	switch k {
	case KindArtifact:
		return "artifact"
	case KindLabel:
		return "label"
	case KindEndOfBurst:
		return "end_of_burst"
	default:
		return "unknown"
	}
}

// Event is one inbound message from the transport layer. Exactly one of
// Artifact or Text is meaningful, selected by Kind. Events are immutable
// once created; the burst store owns them until a flush hands the snapshot
// to the pairing engine.
type Event struct {
	Kind EventKind

	// Artifact is valid when Kind == KindArtifact.
	Artifact ArtifactRef

	// Text is valid when Kind == KindLabel.
	Text string

	// Timestamp is supplied by the transport (message time, not receive
	// time, when the transport knows the difference).
	Timestamp time.Time
}

// NewArtifactEvent builds an artifact event.
func NewArtifactEvent(ref ArtifactRef, ts time.Time) Event {
	return Event{Kind: KindArtifact, Artifact: ref, Timestamp: ts}
}

// NewLabelEvent builds a label event.
func NewLabelEvent(text string, ts time.Time) Event {
	return Event{Kind: KindLabel, Text: text, Timestamp: ts}
}

// NewEndOfBurstEvent builds an end-of-burst marker.
func NewEndOfBurstEvent(ts time.Time) Event {
	return Event{Kind: KindEndOfBurst, Timestamp: ts}
}

// ArtifactRef points at a stored invoice workbook.
type ArtifactRef struct {
	// ID uniquely identifies the stored copy (transport-assigned).
	ID string

	// DisplayName is the original file name, used in notifications.
	DisplayName string

	// Path is the local path the extractor reads from.
	Path string
}

// Invoice holds the structured fields extracted from one invoice workbook.
// Extraction is all-or-nothing at the invoice level: individual fields may
// be empty, and a nil Total means no total row or cost column was found,
// which is still a valid result.
type Invoice struct {
	Number        string
	Date          string
	VehicleNumber string
	FirmName      string
	Consignee     string

	// Products is the comma-joined product list from the line-item block.
	Products string

	Total *float64
}

// PendingPair is a matched (invoice, customer) pair whose destination place
// is not yet known. Pairs are finalized in order when the place arrives.
type PendingPair struct {
	Invoice  *Invoice
	Customer string
}
