package catalog

import (
	"fmt"
	"net/http"

	resp "github.com/pawprint/groombook/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	CatalogManager *Manager
	Logger         *zap.Logger
}

// Service is the catalog API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the catalog API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.CatalogManager == nil {
		return nil, fmt.Errorf("nil CatalogManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

func (s *Service) listServices(w http.ResponseWriter, r *http.Request) {
	results, err := s.CatalogManager.ListServices(r.Context())
	if err != nil {
		s.Logger.Error("Unable to list services",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the grooming menu"))
		return
	}
	resp.WriteResponse(w, r, results)
}

func (s *Service) getService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "id")

	svc, err := s.CatalogManager.GetServiceByID(r.Context(), serviceID)
	if err != nil {
		s.Logger.Error("Unable to query service",
			zap.Error(err),
			zap.String("ServiceID", serviceID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the service"))
		return
	}
	if svc == nil || !svc.Active {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find service with specific ID"))
		return
	}

	resp.WriteResponse(w, r, svc)
}

// EffectiveResponse reports the resolved price and duration for a pet
type EffectiveResponse struct {
	ServiceID       string `json:"serviceId"`
	PetID           string `json:"petId"`
	PriceCents      int64  `json:"priceCents"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (s *Service) getEffective(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serviceID := chi.URLParam(r, "id")
	petID := r.URL.Query().Get("petId")

	if petID == "" {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("petId param is required"))
		return
	}

	price, err := s.CatalogManager.EffectivePrice(ctx, petID, serviceID)
	if err == ErrServiceNotFound {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find service with specific ID"))
		return
	}
	if err != nil {
		s.Logger.Error("Unable to resolve effective price",
			zap.Error(err),
			zap.String("ServiceID", serviceID),
			zap.String("PetID", petID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot resolve price"))
		return
	}

	duration, err := s.CatalogManager.EffectiveDuration(ctx, petID, serviceID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot resolve duration"))
		return
	}

	resp.WriteResponse(w, r, EffectiveResponse{
		ServiceID:       serviceID,
		PetID:           petID,
		PriceCents:      price,
		DurationMinutes: duration,
	})
}

// Router will return the routes under catalog API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listServices)
	r.Get("/{id}", s.getService)
	r.Get("/{id}/effective", s.getEffective)

	return r
}
