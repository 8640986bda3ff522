package models

import (
	"time"

	"github.com/google/uuid"
)

// ReproductionStatus represents the lifecycle of a reproduction request.
type ReproductionStatus string

const (
	// ReproductionStatusWaitingForOrderDetails indicates staff has to price the order.
	ReproductionStatusWaitingForOrderDetails ReproductionStatus = "waiting_for_order_details"
	// ReproductionStatusHasOrderDetails indicates the customer received an offer.
	ReproductionStatusHasOrderDetails ReproductionStatus = "has_order_details"
	// ReproductionStatusConfirmed indicates the customer accepted the offer.
	ReproductionStatusConfirmed ReproductionStatus = "confirmed"
	// ReproductionStatusActive indicates payment was accepted and copies are being made.
	ReproductionStatusActive ReproductionStatus = "active"
	// ReproductionStatusCompleted indicates the copies are made.
	ReproductionStatusCompleted ReproductionStatus = "completed"
	// ReproductionStatusDelivered indicates the copies reached the customer.
	ReproductionStatusDelivered ReproductionStatus = "delivered"
	// ReproductionStatusCancelled indicates the reproduction was cancelled.
	ReproductionStatusCancelled ReproductionStatus = "cancelled"
)

var reproductionOrder = map[ReproductionStatus]int{
	ReproductionStatusWaitingForOrderDetails: 0,
	ReproductionStatusHasOrderDetails:        1,
	ReproductionStatusConfirmed:              2,
	ReproductionStatusActive:                 3,
	ReproductionStatusCompleted:              4,
	ReproductionStatusDelivered:              5,
	ReproductionStatusCancelled:              6,
}

// Valid reports whether s is a known reproduction status.
func (s ReproductionStatus) Valid() bool {
	_, ok := reproductionOrder[s]
	return ok
}

// Ordinal returns the position of s in the forward order, or -1.
func (s ReproductionStatus) Ordinal() int {
	if o, ok := reproductionOrder[s]; ok {
		return o
	}
	return -1
}

// IsTerminal reports whether no transition leaves s.
func (s ReproductionStatus) IsTerminal() bool {
	return s == ReproductionStatusDelivered || s == ReproductionStatusCancelled
}

// ReleasesHoldings reports whether holdings are given back in s.
func (s ReproductionStatus) ReleasesHoldings() bool {
	return s == ReproductionStatusCompleted || s.IsTerminal()
}

// HoldingStatus returns the holding status implied by s for a claimed holding.
func (s ReproductionStatus) HoldingStatus() HoldingStatus {
	switch s {
	case ReproductionStatusWaitingForOrderDetails, ReproductionStatusHasOrderDetails, ReproductionStatusConfirmed:
		return HoldingStatusReserved
	case ReproductionStatusActive:
		return HoldingStatusInUse
	}
	return HoldingStatusAvailable
}

// Reproduction is a customer's request for copies of holdings.
type Reproduction struct {
	ID                    uuid.UUID          `json:"id"`
	CustomerName          string             `json:"customer_name"`
	CustomerEmail         string             `json:"customer_email"`
	Date                  time.Time          `json:"date"`
	Status                ReproductionStatus `json:"status"`
	Token                 string             `json:"-"`
	DateHasOrderDetails   *time.Time         `json:"date_has_order_details,omitempty"`
	DatePaymentAccepted   *time.Time         `json:"date_payment_accepted,omitempty"`
	OfferMailReminderSent bool               `json:"offer_mail_reminder_sent"`
	Comment               string             `json:"comment,omitempty"`
	Items                 []*LineItem        `json:"items"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// NewReproduction creates a reproduction waiting for order details.
func NewReproduction(name, email, token string) *Reproduction {
	now := time.Now()
	return &Reproduction{
		ID:            uuid.New(),
		CustomerName:  name,
		CustomerEmail: email,
		Date:          now,
		Status:        ReproductionStatusWaitingForOrderDetails,
		Token:         token,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Ref implements Request.
func (r *Reproduction) Ref() RequestRef {
	return RequestRef{Kind: RequestKindReproduction, ID: r.ID}
}

// RequesterName implements Request.
func (r *Reproduction) RequesterName() string { return r.CustomerName }

// RequesterEmail implements Request.
func (r *Reproduction) RequesterEmail() string { return r.CustomerEmail }

// CreationDate implements Request.
func (r *Reproduction) CreationDate() time.Time { return r.CreatedAt }

// LineItems implements Request.
func (r *Reproduction) LineItems() []*LineItem { return r.Items }

// Holdings implements Request.
func (r *Reproduction) Holdings() []*Holding { return holdingsOf(r.Items) }

// IsActive implements Request. Completed reproductions no longer claim holdings.
func (r *Reproduction) IsActive() bool { return !r.Status.ReleasesHoldings() }

// StatusName implements Request.
func (r *Reproduction) StatusName() string { return string(r.Status) }

// AddItem attaches a holding to the reproduction.
func (r *Reproduction) AddItem(h *Holding, comment string) *LineItem {
	li := NewLineItem(r.Ref(), h, comment)
	r.Items = append(r.Items, li)
	return li
}

// CreateReproductionRequest represents a request to create a reproduction.
type CreateReproductionRequest struct {
	CustomerName  string          `json:"customer_name" binding:"required,min=1,max=255"`
	CustomerEmail string          `json:"customer_email" binding:"required,email"`
	Comment       string          `json:"comment" binding:"max=2000"`
	Items         []LineItemInput `json:"items" binding:"required,min=1,dive"`
}

// UpdateReproductionRequest represents an edit of a reproduction.
type UpdateReproductionRequest struct {
	CustomerName  *string             `json:"customer_name,omitempty" binding:"omitempty,min=1,max=255"`
	CustomerEmail *string             `json:"customer_email,omitempty" binding:"omitempty,email"`
	Comment       *string             `json:"comment,omitempty" binding:"omitempty,max=2000"`
	Status        *ReproductionStatus `json:"status,omitempty"`
	Items         []LineItemInput     `json:"items,omitempty" binding:"omitempty,dive"`
}

// ReproductionFilter narrows reproduction listings.
type ReproductionFilter struct {
	Status ReproductionStatus
	From   *time.Time
	To     *time.Time
	Search string
	Sort   string
	Desc   bool
	Limit  int
	Offset int
}

// PublicReproduction is the customer-facing view of a reproduction.
type PublicReproduction struct {
	ID                  uuid.UUID          `json:"id"`
	Status              ReproductionStatus `json:"status"`
	Date                time.Time          `json:"date"`
	DatePaymentAccepted *time.Time         `json:"date_payment_accepted,omitempty"`
	Items               []string           `json:"items"`
}

// Public returns the customer-facing view of r.
func (r *Reproduction) Public() PublicReproduction {
	items := make([]string, 0, len(r.Items))
	for _, li := range r.Items {
		items = append(items, li.ShortString())
	}
	return PublicReproduction{
		ID:                  r.ID,
		Status:              r.Status,
		Date:                r.Date,
		DatePaymentAccepted: r.DatePaymentAccepted,
		Items:               items,
	}
}
