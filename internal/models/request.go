package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestKind distinguishes the request variants.
type RequestKind string

const (
	// RequestKindReservation is an in-person reading-room request.
	RequestKindReservation RequestKind = "reservation"
	// RequestKindReproduction is a request for copies.
	RequestKindReproduction RequestKind = "reproduction"
)

// RequestRef identifies a request of either kind.
type RequestRef struct {
	Kind RequestKind `json:"kind"`
	ID   uuid.UUID   `json:"id"`
}

// String returns kind/id.
func (r RequestRef) String() string {
	return string(r.Kind) + "/" + r.ID.String()
}

// IsZero reports whether the ref is unset.
func (r RequestRef) IsZero() bool {
	return r.Kind == "" && r.ID == uuid.Nil
}

// Request is the capability set shared by reservations and reproductions.
type Request interface {
	Ref() RequestRef
	RequesterName() string
	RequesterEmail() string
	CreationDate() time.Time
	LineItems() []*LineItem
	Holdings() []*Holding
	// IsActive reports whether the request may still claim holdings.
	IsActive() bool
	StatusName() string
}

// LineItem links one holding to one request.
type LineItem struct {
	ID        uuid.UUID  `json:"id"`
	Request   RequestRef `json:"request"`
	HoldingID uuid.UUID  `json:"holding_id"`
	Holding   *Holding   `json:"holding,omitempty"`
	Comment   string     `json:"comment,omitempty"`
	Completed bool       `json:"completed"`
	Printed   bool       `json:"printed"`
	OnHold    bool       `json:"on_hold"`
}

// NewLineItem creates a line item for the holding.
func NewLineItem(ref RequestRef, h *Holding, comment string) *LineItem {
	return &LineItem{
		ID:        uuid.New(),
		Request:   ref,
		HoldingID: h.ID,
		Holding:   h,
		Comment:   comment,
	}
}

// SetHolding points the line item at h.
func (li *LineItem) SetHolding(h *Holding) {
	li.Holding = h
	if h != nil {
		li.HoldingID = h.ID
	}
}

// MergeWith copies the editable content of other into li.
// Completed, printed and on-hold flags are operational state and are kept.
func (li *LineItem) MergeWith(other *LineItem) {
	li.Comment = other.Comment
	li.HoldingID = other.HoldingID
	li.Holding = other.Holding
}

// IsClaiming reports whether the line item currently drives its holding's status.
func (li *LineItem) IsClaiming() bool {
	return !li.Completed && !li.OnHold
}

// String returns the full print label of the line item.
func (li *LineItem) String() string {
	if li.Holding == nil {
		return li.HoldingID.String()
	}
	label := li.Holding.Signature
	if li.Holding.Title != "" {
		label = li.Holding.Title + " - " + label
	}
	if loc := li.Holding.Location(); loc != "" {
		label += " [" + loc + "]"
	}
	if li.Comment != "" {
		label += ": " + li.Comment
	}
	return label
}

// ShortString returns the compact print-queue label.
func (li *LineItem) ShortString() string {
	if li.Holding == nil {
		return li.HoldingID.String()
	}
	if loc := li.Holding.Location(); loc != "" {
		return fmt.Sprintf("%s (%s)", li.Holding.Signature, loc)
	}
	return li.Holding.Signature
}

// ItemFor returns the line item of r that references the holding, or nil.
func ItemFor(r Request, holdingID uuid.UUID) *LineItem {
	for _, li := range r.LineItems() {
		if li.HoldingID == holdingID {
			return li
		}
	}
	return nil
}

// holdingsOf collects the attached holdings of items, in order.
func holdingsOf(items []*LineItem) []*Holding {
	holdings := make([]*Holding, 0, len(items))
	for _, li := range items {
		if li.Holding != nil {
			holdings = append(holdings, li.Holding)
		}
	}
	return holdings
}

// LineItemInput is one requested holding in a create or edit payload.
type LineItemInput struct {
	HoldingID uuid.UUID `json:"holding_id" binding:"required"`
	Comment   string    `json:"comment" binding:"max=1000"`
}
