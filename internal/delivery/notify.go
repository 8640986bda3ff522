package delivery

import (
	"context"

	"github.com/socialhistoryservices/delivery/internal/models"
)

// Notifier sends mails to requesters. Calls happen after commit and their
// errors are logged only.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, r *models.Reservation) error
	ReservationReady(ctx context.Context, r *models.Reservation) error
	ReproductionPaymentAccepted(ctx context.Context, r *models.Reproduction) error
	ReproductionPaymentReminder(ctx context.Context, r *models.Reproduction) error
	ReproductionDelivered(ctx context.Context, r *models.Reproduction, downloadURL string) error
	ReproductionCancelled(ctx context.Context, r *models.Reproduction) error
}

// Publisher receives committed holding status changes.
type Publisher interface {
	PublishHoldingChange(change models.HoldingStatusChange)
}

// Recorder counts state machine activity.
type Recorder interface {
	RecordTransition(kind models.RequestKind, from, to string)
	RecordHoldingChange(from, to models.HoldingStatus)
	RecordScan(outcome string)
	RecordNotification(name string, err error)
	RecordConflict(reason string)
}

// LinkSigner produces a download link for the copies of a reproduction.
type LinkSigner interface {
	DownloadURL(ctx context.Context, r *models.Reproduction) (string, error)
}

type nopNotifier struct{}

func (nopNotifier) ReservationConfirmed(context.Context, *models.Reservation) error {
	return nil
}

func (nopNotifier) ReservationReady(context.Context, *models.Reservation) error {
	return nil
}

func (nopNotifier) ReproductionPaymentAccepted(context.Context, *models.Reproduction) error {
	return nil
}

func (nopNotifier) ReproductionPaymentReminder(context.Context, *models.Reproduction) error {
	return nil
}

func (nopNotifier) ReproductionDelivered(context.Context, *models.Reproduction, string) error {
	return nil
}

func (nopNotifier) ReproductionCancelled(context.Context, *models.Reproduction) error {
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishHoldingChange(models.HoldingStatusChange) {}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(models.RequestKind, string, string) {}
func (nopRecorder) RecordHoldingChange(models.HoldingStatus, models.HoldingStatus) {}
func (nopRecorder) RecordScan(string) {}
func (nopRecorder) RecordNotification(string, error) {}
func (nopRecorder) RecordConflict(string) {}
