package models

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus represents the lifecycle of a reading-room reservation.
type ReservationStatus string

const (
	// ReservationStatusPending indicates the holdings are reserved for the visit.
	ReservationStatusPending ReservationStatus = "pending"
	// ReservationStatusActive indicates holdings are being used in the reading room.
	ReservationStatusActive ReservationStatus = "active"
	// ReservationStatusCompleted indicates every holding has been returned.
	ReservationStatusCompleted ReservationStatus = "completed"
)

var reservationOrder = map[ReservationStatus]int{
	ReservationStatusPending:   0,
	ReservationStatusActive:    1,
	ReservationStatusCompleted: 2,
}

// Valid reports whether s is a known reservation status.
func (s ReservationStatus) Valid() bool {
	_, ok := reservationOrder[s]
	return ok
}

// Ordinal returns the position of s in the forward order, or -1.
func (s ReservationStatus) Ordinal() int {
	if o, ok := reservationOrder[s]; ok {
		return o
	}
	return -1
}

// IsTerminal reports whether no transition leaves s.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCompleted
}

// HoldingStatus returns the holding status implied by s for a claimed holding.
func (s ReservationStatus) HoldingStatus() HoldingStatus {
	switch s {
	case ReservationStatusPending:
		return HoldingStatusReserved
	case ReservationStatusActive:
		return HoldingStatusInUse
	}
	return HoldingStatusAvailable
}

// Reservation is a visitor's request to consult holdings in the reading room.
type Reservation struct {
	ID           uuid.UUID         `json:"id"`
	VisitorName  string            `json:"visitor_name"`
	VisitorEmail string            `json:"visitor_email"`
	Date         time.Time         `json:"date"`
	ReturnDate   *time.Time        `json:"return_date,omitempty"`
	Special      bool              `json:"special"`
	Printed      bool              `json:"printed"`
	Status       ReservationStatus `json:"status"`
	QueueNo      *int              `json:"queue_no,omitempty"`
	Comment      string            `json:"comment,omitempty"`
	Items        []*LineItem       `json:"items"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewReservation creates a pending reservation for the visitor.
func NewReservation(name, email string, date time.Time) *Reservation {
	now := time.Now()
	return &Reservation{
		ID:           uuid.New(),
		VisitorName:  name,
		VisitorEmail: email,
		Date:         date,
		Status:       ReservationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Ref implements Request.
func (r *Reservation) Ref() RequestRef {
	return RequestRef{Kind: RequestKindReservation, ID: r.ID}
}

// RequesterName implements Request.
func (r *Reservation) RequesterName() string { return r.VisitorName }

// RequesterEmail implements Request.
func (r *Reservation) RequesterEmail() string { return r.VisitorEmail }

// CreationDate implements Request.
func (r *Reservation) CreationDate() time.Time { return r.CreatedAt }

// LineItems implements Request.
func (r *Reservation) LineItems() []*LineItem { return r.Items }

// Holdings implements Request.
func (r *Reservation) Holdings() []*Holding { return holdingsOf(r.Items) }

// IsActive implements Request.
func (r *Reservation) IsActive() bool { return !r.Status.IsTerminal() }

// StatusName implements Request.
func (r *Reservation) StatusName() string { return string(r.Status) }

// AddItem attaches a holding to the reservation.
func (r *Reservation) AddItem(h *Holding, comment string) *LineItem {
	li := NewLineItem(r.Ref(), h, comment)
	r.Items = append(r.Items, li)
	return li
}

// CreateReservationRequest represents a request to create a reservation.
type CreateReservationRequest struct {
	VisitorName  string          `json:"visitor_name" binding:"required,min=1,max=255"`
	VisitorEmail string          `json:"visitor_email" binding:"required,email"`
	Date         time.Time       `json:"date" binding:"required"`
	ReturnDate   *time.Time      `json:"return_date,omitempty"`
	Special      bool            `json:"special"`
	Comment      string          `json:"comment" binding:"max=2000"`
	Items        []LineItemInput `json:"items" binding:"required,min=1,dive"`
}

// UpdateReservationRequest represents an edit of a reservation.
// Items, when set, replaces the line items.
type UpdateReservationRequest struct {
	VisitorName  *string            `json:"visitor_name,omitempty" binding:"omitempty,min=1,max=255"`
	VisitorEmail *string            `json:"visitor_email,omitempty" binding:"omitempty,email"`
	Date         *time.Time         `json:"date,omitempty"`
	ReturnDate   *time.Time         `json:"return_date,omitempty"`
	Special      *bool              `json:"special,omitempty"`
	Comment      *string            `json:"comment,omitempty" binding:"omitempty,max=2000"`
	Status       *ReservationStatus `json:"status,omitempty"`
	Items        []LineItemInput    `json:"items,omitempty" binding:"omitempty,dive"`
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	Status  ReservationStatus
	From    *time.Time
	To      *time.Time
	Search  string
	Printed *bool
	Special *bool
	Sort    string
	Desc    bool
	Limit   int
	Offset  int
}
