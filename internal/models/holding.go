package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// HoldingStatus represents the physical availability of a holding.
type HoldingStatus string

const (
	// HoldingStatusAvailable indicates the holding is on the shelf.
	HoldingStatusAvailable HoldingStatus = "available"
	// HoldingStatusReserved indicates a request has claimed the holding.
	HoldingStatusReserved HoldingStatus = "reserved"
	// HoldingStatusInUse indicates the holding has been handed out.
	HoldingStatusInUse HoldingStatus = "in_use"
	// HoldingStatusReturned indicates the holding is back at the desk.
	HoldingStatusReturned HoldingStatus = "returned"
)

// Valid reports whether s is a known holding status.
func (s HoldingStatus) Valid() bool {
	switch s {
	case HoldingStatusAvailable, HoldingStatusReserved, HoldingStatusInUse, HoldingStatusReturned:
		return true
	}
	return false
}

// Next returns the status a holding moves to when its line item is marked.
// An available holding stays available.
func (s HoldingStatus) Next() HoldingStatus {
	switch s {
	case HoldingStatusReserved:
		return HoldingStatusInUse
	case HoldingStatusInUse:
		return HoldingStatusReturned
	case HoldingStatusReturned:
		return HoldingStatusAvailable
	}
	return s
}

// IsClaim reports whether the status is one a request holds a holding in.
func (s HoldingStatus) IsClaim() bool {
	return s == HoldingStatusReserved || s == HoldingStatusInUse
}

// UsageRestriction controls whether a holding may be requested without staff override.
type UsageRestriction string

const (
	// UsageRestrictionOpen allows visitors to request the holding.
	UsageRestrictionOpen UsageRestriction = "open"
	// UsageRestrictionClosed requires staff override.
	UsageRestrictionClosed UsageRestriction = "closed"
)

// Signature markers that put a holding out of circulation.
var (
	closedSignatureSuffixes = []string{".x", "(missing)"}
	closedSignaturePrefixes = []string{"no circulation", "niet ter inzage"}
)

// RestrictionForSignature derives the usage restriction implied by a signature.
func RestrictionForSignature(signature string) UsageRestriction {
	s := cases.Lower(language.Und).String(strings.TrimSpace(signature))
	for _, suffix := range closedSignatureSuffixes {
		if strings.HasSuffix(s, suffix) {
			return UsageRestrictionClosed
		}
	}
	for _, prefix := range closedSignaturePrefixes {
		if strings.HasPrefix(s, prefix) {
			return UsageRestrictionClosed
		}
	}
	return UsageRestrictionOpen
}

// Holding represents one physical copy of an archival record.
type Holding struct {
	ID               uuid.UUID        `json:"id"`
	RecordPID        string           `json:"record_pid"`
	Title            string           `json:"title,omitempty"`
	Signature        string           `json:"signature"`
	Floor            *int             `json:"floor,omitempty"`
	Direction        string           `json:"direction,omitempty"`
	Cabinet          string           `json:"cabinet,omitempty"`
	Shelf            string           `json:"shelf,omitempty"`
	UsageRestriction UsageRestriction `json:"usage_restriction"`
	Status           HoldingStatus    `json:"status"`
	Revision         int64            `json:"revision"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewHolding creates an available holding for the given record and signature.
func NewHolding(recordPID, signature string) *Holding {
	now := time.Now()
	h := &Holding{
		ID:        uuid.New(),
		RecordPID: recordPID,
		Status:    HoldingStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.SetSignature(signature)
	return h
}

// SetSignature sets the shelfmark and derives the usage restriction from it.
func (h *Holding) SetSignature(signature string) {
	h.Signature = strings.TrimSpace(signature)
	h.UsageRestriction = RestrictionForSignature(h.Signature)
}

// SetStatus sets the status unconditionally.
func (h *Holding) SetStatus(status HoldingStatus) {
	h.Status = status
}

// IsAvailableForRequest reports whether a visitor may request the holding.
func (h *Holding) IsAvailableForRequest() bool {
	return h.Status == HoldingStatusAvailable && h.UsageRestriction == UsageRestrictionOpen
}

// Location formats the physical location fields for print labels.
func (h *Holding) Location() string {
	var parts []string
	if h.Floor != nil {
		parts = append(parts, "floor "+strconv.Itoa(*h.Floor))
	}
	for _, p := range []string{h.Direction, h.Cabinet, h.Shelf} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}

// CreateHoldingRequest represents a request to register a holding.
type CreateHoldingRequest struct {
	RecordPID string `json:"record_pid" binding:"required,max=255"`
	Title     string `json:"title" binding:"max=1000"`
	Signature string `json:"signature" binding:"required,max=255"`
	Floor     *int   `json:"floor,omitempty"`
	Direction string `json:"direction" binding:"max=50"`
	Cabinet   string `json:"cabinet" binding:"max=50"`
	Shelf     string `json:"shelf" binding:"max=50"`
}

// UpdateHoldingStatusRequest represents a staff override of a holding's status.
type UpdateHoldingStatusRequest struct {
	Status HoldingStatus `json:"status" binding:"required"`
}

// HoldingFilter narrows holding listings.
type HoldingFilter struct {
	Status    HoldingStatus
	Floor     *int
	RecordPID string
	Search    string
	Limit     int
	Offset    int
}
