package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pawprint/groombook/auth"
	"github.com/pawprint/groombook/broker"
	"github.com/pawprint/groombook/catalog"
	"github.com/pawprint/groombook/metrics"
	"github.com/pawprint/groombook/pet"
	resp "github.com/pawprint/groombook/response"
	"github.com/pawprint/groombook/subscription"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/lithammer/shortuuid/v3"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	ReservationManager *Manager
	Ledger             UsageLedger
	CatalogManager     *catalog.Manager
	PetManager         *pet.Manager
	Producer           broker.Producer
	DeductionPolicy    DeductionPolicy
	Logger             *zap.Logger
}

// Service is the reservation API router. It orchestrates booking: resolve an
// eligible subscription, hold capacity, then persist the reservation, and
// compensate the hold if the persist fails.
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the reservation API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.ReservationManager == nil {
		return nil, fmt.Errorf("nil ReservationManager is invalid")
	}
	if option.Ledger == nil {
		return nil, fmt.Errorf("nil Ledger is invalid")
	}
	if option.CatalogManager == nil {
		return nil, fmt.Errorf("nil CatalogManager is invalid")
	}
	if option.PetManager == nil {
		return nil, fmt.Errorf("nil PetManager is invalid")
	}
	if option.Producer == nil {
		return nil, fmt.Errorf("nil Producer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.DeductionPolicy == nil {
		option.DeductionPolicy = FlatDeduction
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// NewReservationRequest contains the request from client to book an appointment
type NewReservationRequest struct {
	PetID           string   `json:"petId" validate:"required"`
	ServiceIDs      []string `json:"serviceIds" validate:"required,min=1"`
	ScheduledAt     string   `json:"scheduledAt" validate:"required"` // RFC3339
	UseSubscription bool     `json:"useSubscription"`
	SubscriptionID  string   `json:"subscriptionId"` // optional, resolved automatically when empty
	Notes           string   `json:"notes"`
}

func (s *Service) newReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("CustomerID", claims.ID))

	var req NewReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid scheduledAt"))
		return
	}

	p, err := s.PetManager.GetByID(ctx, req.PetID)
	if err != nil {
		logger.Error("Unable to verify pet ownership",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
		return
	}
	if p == nil || p.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find pet with specific ID"))
		return
	}

	logger = logger.With(zap.String("PetID", req.PetID))

	var totalCents int64
	var durationMinutes int
	for _, serviceID := range req.ServiceIDs {
		duration, err := s.CatalogManager.EffectiveDuration(ctx, req.PetID, serviceID)
		if err == catalog.ErrServiceNotFound {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown service: "+serviceID))
			return
		}
		if err != nil {
			logger.Error("Unable to resolve service duration",
				zap.Error(err),
				zap.String("ServiceID", serviceID),
			)
			resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
			return
		}
		durationMinutes += duration

		if !req.UseSubscription {
			price, err := s.CatalogManager.EffectivePrice(ctx, req.PetID, serviceID)
			if err != nil {
				logger.Error("Unable to resolve service price",
					zap.Error(err),
					zap.String("ServiceID", serviceID),
				)
				resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
				return
			}
			totalCents += price
		}
	}

	deduction := s.DeductionPolicy(req.ServiceIDs)

	var subscriptionID string
	if req.UseSubscription {
		subscriptionID = req.SubscriptionID
		if subscriptionID == "" {
			sub, err := s.Ledger.GetActiveForPet(ctx, req.PetID, scheduledAt)
			if err != nil {
				logger.Error("Unable to resolve active subscription",
					zap.Error(err),
				)
				resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
				return
			}
			if sub == nil {
				resp.WriteError(w, r, resp.ErrNoAvailability())
				return
			}
			subscriptionID = sub.ID
		} else {
			sub, err := s.Ledger.GetByID(ctx, subscriptionID)
			if err != nil {
				resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
				return
			}
			if sub == nil || sub.PetID != req.PetID {
				resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
				return
			}
		}

		logger = logger.With(zap.String("SubscriptionID", subscriptionID))

		// Step one of the saga: hold capacity before any row exists
		if err := s.Ledger.ReserveUsage(ctx, subscriptionID, deduction, claims.Email); err != nil {
			switch err {
			case subscription.ErrNoCapacity, subscription.ErrNotActive:
				resp.WriteError(w, r, resp.ErrNoAvailability())
			case subscription.ErrNotFound:
				resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
			default:
				logger.Error("Unable to reserve units",
					zap.Error(err),
				)
				resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
			}
			return
		}
	}

	resv := &Reservation{
		ID:              shortuuid.New(),
		PetID:           req.PetID,
		CustomerID:      claims.ID,
		SubscriptionID:  subscriptionID,
		UseSubscription: req.UseSubscription,
		DeductionUnits:  deduction,
		Status:          StatusPending,
		ServiceIDs:      joinServiceIDs(req.ServiceIDs),
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
		TotalCents:      totalCents,
		Notes:           req.Notes,
		CreatedBy:       claims.Email,
		UpdatedBy:       claims.Email,
	}

	if err := s.ReservationManager.Create(ctx, resv); err != nil {
		// Step two failed: compensate the hold or the units leak forever.
		// Detached from the request context, which may already be canceled
		// (a dropped client is one way the persist fails)
		if req.UseSubscription {
			if rErr := s.Ledger.ReleaseUsage(context.Background(), subscriptionID, deduction, claims.Email); rErr != nil {
				logger.Error("Unable to release units after failed reservation write",
					zap.Error(rErr),
				)
			}
		}
		logger.Error("Unable to create reservation",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to create reservation"))
		return
	}

	metrics.ReservationsCreated.Inc()

	go s.publishEvent(&broker.ReservationEvent{
		Kind:           broker.EventReservationCreated,
		ReservationID:  resv.ID,
		PetID:          resv.PetID,
		CustomerID:     resv.CustomerID,
		SubscriptionID: resv.SubscriptionID,
		Status:         resv.Status,
		ScheduledAt:    resv.ScheduledAt,
	})

	resp.WriteResponse(w, r, resv)
}

// TransitionRequest contains the request from client to change reservation status
type TransitionRequest struct {
	Action string `json:"action"`
}

var actionStatus = map[string]string{
	"Confirm":  StatusConfirmed,
	"Begin":    StatusInProgress,
	"Complete": StatusCompleted,
	"Cancel":   StatusCancelled,
	"NoShow":   StatusNoShow,
}

func (s *Service) transitionReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	reservationID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("CustomerID", claims.ID),
		zap.String("ReservationID", reservationID),
	)

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	next, ok := actionStatus[req.Action]
	if !ok {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unknown action"))
		return
	}

	current, err := s.ReservationManager.GetByID(ctx, reservationID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update reservation"))
		return
	}
	if current == nil || current.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find reservation with specific ID"))
		return
	}

	result, err := s.ReservationManager.Transition(ctx, reservationID, next, claims.Email)
	switch err {
	case nil:
	case ErrNotFound:
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find reservation with specific ID"))
		return
	case ErrInvalidTransition:
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(
			fmt.Sprintf("Reservation in '%s' state cannot be moved with action '%s'", current.Status, req.Action)))
		return
	case ErrConflict:
		resp.WriteError(w, r, resp.ErrConflict().AddMessages("Reservation was modified concurrently, please retry"))
		return
	default:
		logger.Error("Unable to update reservation status",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update reservation"))
		return
	}

	if !result.NoOp {
		go s.publishEvent(&broker.ReservationEvent{
			Kind:           broker.EventReservationStatusChanged,
			ReservationID:  result.Reservation.ID,
			PetID:          result.Reservation.PetID,
			CustomerID:     result.Reservation.CustomerID,
			SubscriptionID: result.Reservation.SubscriptionID,
			PreviousStatus: result.Reservation.PreviousStatus,
			Status:         result.Reservation.Status,
			ScheduledAt:    result.Reservation.ScheduledAt,
		})
	}

	resp.WriteResponse(w, r, result.Reservation)
}

func (s *Service) getReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	reservationID := chi.URLParam(r, "id")

	resv, err := s.ReservationManager.GetByID(ctx, reservationID)
	if err != nil {
		s.Logger.Error("Unable to query reservation",
			zap.Error(err),
			zap.String("ReservationID", reservationID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the reservation"))
		return
	}
	if resv == nil || resv.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find reservation with specific ID"))
		return
	}

	resp.WriteResponse(w, r, resv)
}

func (s *Service) listReservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	before := r.URL.Query().Get("before")

	var parsedTime time.Time
	if before != "" {
		var err error
		parsedTime, err = time.Parse(time.RFC3339Nano, before)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid before param"))
			return
		}
	}

	results, err := s.ReservationManager.List(ctx, ListOption{
		CustomerID: claims.ID,
		PetID:      r.URL.Query().Get("petId"),
		Before:     parsedTime,
		Limit:      20,
	})
	if err != nil {
		s.Logger.Error("Unable to list reservations by customer id",
			zap.Error(err),
			zap.String("CustomerID", claims.ID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of reservations"))
		return
	}

	resp.WriteResponse(w, r, results)
}

func (s *Service) deleteReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	reservationID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("CustomerID", claims.ID),
		zap.String("ReservationID", reservationID),
	)

	resv, err := s.ReservationManager.GetByID(ctx, reservationID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to delete reservation"))
		return
	}
	if resv == nil || resv.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find reservation with specific ID"))
		return
	}

	if err := s.ReservationManager.Delete(ctx, reservationID, claims.Email); err != nil {
		logger.Error("Unable to delete reservation",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to delete reservation"))
		return
	}

	go s.publishEvent(&broker.ReservationEvent{
		Kind:           broker.EventReservationDeleted,
		ReservationID:  resv.ID,
		PetID:          resv.PetID,
		CustomerID:     resv.CustomerID,
		SubscriptionID: resv.SubscriptionID,
		PreviousStatus: resv.Status,
		Status:         resv.Status,
		ScheduledAt:    resv.ScheduledAt,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) publishEvent(e *broker.ReservationEvent) {
	if err := s.Producer.PublishReservationEvent(e); err != nil {
		s.Logger.Error("Unable to publish reservation event",
			zap.Error(err),
			zap.String("ReservationID", e.ReservationID),
		)
		// fail through: events are best-effort, database state is authoritative
	}
}

// Router will return the routes under reservation API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listReservations)
	r.Post("/", s.newReservation)
	r.Get("/{id}", s.getReservation)
	r.Post("/{id}", s.transitionReservation)
	r.Delete("/{id}", s.deleteReservation)

	return r
}
