package models

import (
	"time"

	"github.com/google/uuid"
)

// HoldingStatusChange records one committed change of a holding's status.
type HoldingStatusChange struct {
	HoldingID uuid.UUID     `json:"holding_id"`
	Signature string        `json:"signature"`
	Floor     *int          `json:"floor,omitempty"`
	From      HoldingStatus `json:"from"`
	To        HoldingStatus `json:"to"`
	Request   *RequestRef   `json:"request,omitempty"`
	At        time.Time     `json:"at"`
}
