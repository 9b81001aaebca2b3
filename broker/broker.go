package broker

import (
	"context"
	"time"
)

// EventKind identifies what happened to a reservation
type EventKind string

// Defining the reservation event kinds
const (
	EventReservationCreated       EventKind = "reservation.created"
	EventReservationStatusChanged EventKind = "reservation.status_changed"
	EventReservationDeleted       EventKind = "reservation.deleted"
)

// ReservationEvent is published on every reservation mutation so downstream
// consumers (e.g. the notifier) can react without touching the ledger
type ReservationEvent struct {
	Kind           EventKind `json:"kind"`
	ReservationID  string    `json:"reservationId"`
	PetID          string    `json:"petId"`
	CustomerID     string    `json:"customerId"`
	SubscriptionID string    `json:"subscriptionId,omitempty"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Status         string    `json:"status"`
	ScheduledAt    time.Time `json:"scheduledAt"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Producer defines a producer sending reservation events via message broker
type Producer interface {
	Close()
	PublishReservationEvent(e *ReservationEvent) error
}

// Consumer defines a consumer receiving reservation events via message broker
type Consumer interface {
	Close()
	ReceiveReservationEvents(ctx context.Context, queue string) (<-chan *ReservationEvent, error)
}
