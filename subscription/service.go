package subscription

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pawprint/groombook/auth"
	"github.com/pawprint/groombook/pet"
	resp "github.com/pawprint/groombook/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	SubscriptionManager *Manager
	PetManager          *pet.Manager
	StripeClient        *client.API
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.PetManager == nil {
		return nil, fmt.Errorf("nil PetManager is invalid")
	}
	if option.StripeClient == nil {
		return nil, fmt.Errorf("nil StripeClient is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// PurchaseRequest contains the request from client to buy a grooming package
type PurchaseRequest struct {
	PetID           string `json:"petId" validate:"required"`
	StartDate       string `json:"startDate" validate:"required"` // YYYY-MM-DD
	EndDate         string `json:"endDate" validate:"required"`   // YYYY-MM-DD
	TotalUnits      int    `json:"totalUnits" validate:"min=0"`   // 0 means unlimited
	PriceCents      int64  `json:"priceCents" validate:"min=0"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
	Notes           string `json:"notes"`
}

func (s *Service) purchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("CustomerID", claims.ID))

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid startDate"))
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid endDate"))
		return
	}
	if DateOnly(endDate).Before(DateOnly(startDate)) {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("endDate cannot be before startDate"))
		return
	}

	p, err := s.PetManager.GetByID(ctx, req.PetID)
	if err != nil {
		logger.Error("Unable to verify pet ownership",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to purchase package"))
		return
	}
	if p == nil || p.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find pet with specific ID"))
		return
	}

	logger = logger.With(zap.String("PetID", req.PetID))

	if req.PriceCents > 0 {
		piParams := &stripe.PaymentIntentParams{
			Params: stripe.Params{
				Context: ctx,
			},
			Amount:        stripe.Int64(req.PriceCents),
			Currency:      stripe.String(string(stripe.CurrencyUSD)),
			Customer:      stripe.String(claims.ID),
			PaymentMethod: stripe.String(req.PaymentMethodID),
			Confirm:       stripe.Bool(true),
			Description:   stripe.String("Grooming package for pet " + req.PetID),
		}
		if _, err := s.StripeClient.PaymentIntents.New(piParams); err != nil {
			logger.Error("Unable to charge for package",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrUnprocessable().AddMessages("Payment was not accepted"))
			return
		}
	}

	sub, err := s.SubscriptionManager.Create(ctx, CreateOption{
		PetID:      req.PetID,
		StartDate:  startDate,
		EndDate:    endDate,
		TotalUnits: req.TotalUnits,
		PriceCents: req.PriceCents,
		Notes:      req.Notes,
		Actor:      claims.Email,
	})
	if err != nil {
		logger.Error("Unable to create subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to purchase package"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("CustomerID", claims.ID),
		zap.String("SubscriptionID", subscriptionID),
	)

	sub, err := s.SubscriptionManager.GetByID(ctx, subscriptionID)
	if err != nil {
		logger.Error("Unable to query subscription",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the subscription"))
		return
	}
	if sub == nil || !s.ownsPet(r, sub.PetID, claims.ID) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	petID := r.URL.Query().Get("petId")

	logger := s.Logger.With(
		zap.String("CustomerID", claims.ID),
		zap.String("PetID", petID),
	)

	if !s.ownsPet(r, petID, claims.ID) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find pet with specific ID"))
		return
	}

	results, err := s.SubscriptionManager.List(ctx, ListOption{
		PetID: petID,
		Limit: 20,
	})
	if err != nil {
		logger.Error("Unable to list subscriptions by pet id",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of subscriptions"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// AvailabilityResponse reports the advisory capacity check for a subscription
type AvailabilityResponse struct {
	SubscriptionID string `json:"subscriptionId"`
	Units          int    `json:"units"`
	Available      bool   `json:"available"`
	RemainingUnits int    `json:"remainingUnits"`
}

func (s *Service) checkAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	units := 1
	if q := r.URL.Query().Get("units"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed <= 0 {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid units param"))
			return
		}
		units = parsed
	}

	sub, err := s.SubscriptionManager.GetByID(ctx, subscriptionID)
	if err != nil {
		s.Logger.Error("Unable to query subscription",
			zap.Error(err),
			zap.String("SubscriptionID", subscriptionID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot check availability"))
		return
	}
	if sub == nil || !s.ownsPet(r, sub.PetID, claims.ID) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
		return
	}

	available, err := s.SubscriptionManager.CheckAvailability(ctx, subscriptionID, units)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot check availability"))
		return
	}

	resp.WriteResponse(w, r, AvailabilityResponse{
		SubscriptionID: subscriptionID,
		Units:          units,
		Available:      available,
		RemainingUnits: sub.Remaining(),
	})
}

func (s *Service) getActiveForPet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	petID := r.URL.Query().Get("petId")

	onDate := time.Now()
	if q := r.URL.Query().Get("date"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid date param"))
			return
		}
		onDate = parsed
	}

	if !s.ownsPet(r, petID, claims.ID) {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find pet with specific ID"))
		return
	}

	sub, err := s.SubscriptionManager.GetActiveForPet(ctx, petID, onDate)
	if err != nil {
		s.Logger.Error("Unable to resolve active subscription",
			zap.Error(err),
			zap.String("PetID", petID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot look up active subscription"))
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("No active subscription for this pet on the given date"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

// ownsPet reports whether the pet exists and belongs to the customer
func (s *Service) ownsPet(r *http.Request, petID, customerID string) bool {
	if len(petID) == 0 {
		return false
	}
	p, err := s.PetManager.GetByID(r.Context(), petID)
	if err != nil || p == nil {
		return false
	}
	return p.CustomerID == customerID
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listSubscriptions)
	r.Post("/", s.purchase)
	r.Get("/active", s.getActiveForPet)
	r.Get("/{id}", s.getSubscription)
	r.Get("/{id}/availability", s.checkAvailability)

	return r
}
