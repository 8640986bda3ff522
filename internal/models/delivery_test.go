package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRestrictionForSignature(t *testing.T) {
	tests := []struct {
		signature string
		want      UsageRestriction
	}{
		{"ARCH00293.1", UsageRestrictionOpen},
		{"IISG 12/34", UsageRestrictionOpen},
		{"ARCH00293.X", UsageRestrictionClosed},
		{"ARCH00293.x ", UsageRestrictionClosed},
		{"N 1234 (missing)", UsageRestrictionClosed},
		{"No Circulation 12", UsageRestrictionClosed},
		{"niet ter inzage: doos 3", UsageRestrictionClosed},
		{"box.xml", UsageRestrictionOpen},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			if got := RestrictionForSignature(tt.signature); got != tt.want {
				t.Errorf("RestrictionForSignature(%q) = %s, want %s", tt.signature, got, tt.want)
			}
		})
	}
}

func TestNewHolding(t *testing.T) {
	h := NewHolding("10622/ARCH00293", " ARCH00293.x ")

	if h.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if h.Signature != "ARCH00293.x" {
		t.Errorf("expected trimmed signature, got %q", h.Signature)
	}
	if h.Status != HoldingStatusAvailable {
		t.Errorf("expected status available, got %s", h.Status)
	}
	if h.UsageRestriction != UsageRestrictionClosed {
		t.Errorf("expected closed restriction, got %s", h.UsageRestriction)
	}
	if h.IsAvailableForRequest() {
		t.Error("closed holding must not be available for request")
	}
}

func TestHoldingStatus_Next(t *testing.T) {
	tests := map[HoldingStatus]HoldingStatus{
		HoldingStatusReserved:  HoldingStatusInUse,
		HoldingStatusInUse:     HoldingStatusReturned,
		HoldingStatusReturned:  HoldingStatusAvailable,
		HoldingStatusAvailable: HoldingStatusAvailable,
	}
	for from, want := range tests {
		if got := from.Next(); got != want {
			t.Errorf("%s.Next() = %s, want %s", from, got, want)
		}
	}
	if HoldingStatus("lost").Valid() {
		t.Error("unknown status must not be valid")
	}
}

func TestHolding_Location(t *testing.T) {
	floor := 3
	h := &Holding{Floor: &floor, Cabinet: "12", Shelf: "b"}
	if got := h.Location(); got != "floor 3 / 12 / b" {
		t.Errorf("unexpected location %q", got)
	}
	if got := (&Holding{}).Location(); got != "" {
		t.Errorf("expected empty location, got %q", got)
	}
}

func TestReservationStatus_HoldingStatus(t *testing.T) {
	tests := map[ReservationStatus]HoldingStatus{
		ReservationStatusPending:   HoldingStatusReserved,
		ReservationStatusActive:    HoldingStatusInUse,
		ReservationStatusCompleted: HoldingStatusAvailable,
	}
	for status, want := range tests {
		if got := status.HoldingStatus(); got != want {
			t.Errorf("%s.HoldingStatus() = %s, want %s", status, got, want)
		}
	}
	if !ReservationStatusCompleted.IsTerminal() || ReservationStatusActive.IsTerminal() {
		t.Error("only completed is terminal")
	}
	if ReservationStatus("lost").Ordinal() != -1 {
		t.Error("unknown status must have ordinal -1")
	}
}

func TestReproductionStatus_Lifecycle(t *testing.T) {
	for _, s := range []ReproductionStatus{
		ReproductionStatusWaitingForOrderDetails,
		ReproductionStatusHasOrderDetails,
		ReproductionStatusConfirmed,
	} {
		if s.HoldingStatus() != HoldingStatusReserved {
			t.Errorf("%s should reserve holdings", s)
		}
		if s.ReleasesHoldings() {
			t.Errorf("%s should not release holdings", s)
		}
	}
	if ReproductionStatusActive.HoldingStatus() != HoldingStatusInUse {
		t.Error("active reproduction should have holdings in use")
	}
	for _, s := range []ReproductionStatus{
		ReproductionStatusCompleted,
		ReproductionStatusDelivered,
		ReproductionStatusCancelled,
	} {
		if !s.ReleasesHoldings() {
			t.Errorf("%s should release holdings", s)
		}
	}
	if ReproductionStatusCompleted.IsTerminal() {
		t.Error("completed can still be delivered")
	}
}

func TestLineItem_MergeWith(t *testing.T) {
	h := NewHolding("10622/ARCH00293", "ARCH00293.1")
	r := NewReservation("Visitor", "visitor@example.com", time.Now())
	li := r.AddItem(h, "first")
	li.Completed = true
	li.Printed = true
	li.OnHold = true

	other := NewLineItem(r.Ref(), h, "second")
	li.MergeWith(other)

	if li.Comment != "second" {
		t.Errorf("expected comment to be merged, got %q", li.Comment)
	}
	if !li.Completed || !li.Printed || !li.OnHold {
		t.Error("operational flags must survive a merge")
	}
	if li.Holding != h || li.HoldingID != h.ID {
		t.Error("expected holding to be kept")
	}
	if li.ID == other.ID {
		t.Error("merge must not take the other item's identity")
	}
}

func TestLineItem_Labels(t *testing.T) {
	floor := 2
	h := NewHolding("10622/ARCH00293", "ARCH00293.1")
	h.Title = "Papers"
	h.Floor = &floor
	li := NewLineItem(RequestRef{Kind: RequestKindReservation, ID: uuid.New()}, h, "fragile")

	if got := li.ShortString(); got != "ARCH00293.1 (floor 2)" {
		t.Errorf("unexpected short label %q", got)
	}
	if got := li.String(); got != "Papers - ARCH00293.1 [floor 2]: fragile" {
		t.Errorf("unexpected label %q", got)
	}
}

func TestItemFor(t *testing.T) {
	a := NewHolding("pid", "A")
	b := NewHolding("pid", "B")
	r := NewReproduction("Customer", "customer@example.com", "token")
	r.AddItem(a, "")

	if ItemFor(r, a.ID) == nil {
		t.Error("expected item for holding a")
	}
	if ItemFor(r, b.ID) != nil {
		t.Error("expected no item for holding b")
	}
	if len(r.Holdings()) != 1 || r.Holdings()[0] != a {
		t.Error("expected holdings to list a")
	}
}

func TestReproduction_Public(t *testing.T) {
	r := NewReproduction("Customer", "customer@example.com", "secret")
	r.AddItem(NewHolding("pid", "A"), "")

	pub := r.Public()
	if pub.ID != r.ID || pub.Status != ReproductionStatusWaitingForOrderDetails {
		t.Error("unexpected public view")
	}
	if len(pub.Items) != 1 || pub.Items[0] != "A" {
		t.Errorf("unexpected items %v", pub.Items)
	}
}
