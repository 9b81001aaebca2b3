package pet

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pawprint/groombook/auth"
	resp "github.com/pawprint/groombook/response"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	PetManager *Manager
	Logger     *zap.Logger
}

// Service is the pet API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the pet API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.PetManager == nil {
		return nil, fmt.Errorf("nil PetManager is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// NewPetRequest contains the request from client to register a pet
type NewPetRequest struct {
	Name      string `json:"name" validate:"required"`
	Species   string `json:"species" validate:"required"`
	Breed     string `json:"breed"`
	BirthDate string `json:"birthDate"` // YYYY-MM-DD, optional
	Notes     string `json:"notes"`
}

func (s *Service) newPet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("CustomerID", claims.ID))

	var req NewPetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(err.Error()))
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid birthDate"))
			return
		}
		birthDate = &parsed
	}

	p := Pet{
		CustomerID: claims.ID,
		Name:       req.Name,
		Species:    req.Species,
		Breed:      req.Breed,
		BirthDate:  birthDate,
		Notes:      req.Notes,
	}
	if err := s.PetManager.Create(ctx, &p); err != nil {
		logger.Error("Unable to create pet",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to register pet"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func (s *Service) getPet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	petID := chi.URLParam(r, "id")

	p, err := s.PetManager.GetByID(ctx, petID)
	if err != nil {
		s.Logger.Error("Unable to query pet",
			zap.Error(err),
			zap.String("PetID", petID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get details about the pet"))
		return
	}
	if p == nil || p.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find pet with specific ID"))
		return
	}

	resp.WriteResponse(w, r, p)
}

func (s *Service) listPets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	results, err := s.PetManager.List(ctx, claims.ID)
	if err != nil {
		s.Logger.Error("Unable to list pets by customer id",
			zap.Error(err),
			zap.String("CustomerID", claims.ID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Cannot get the list of pets"))
		return
	}

	resp.WriteResponse(w, r, results)
}

// UpdatePetRequest contains the mutable fields of a pet profile
type UpdatePetRequest struct {
	Name  string `json:"name"`
	Breed string `json:"breed"`
	Notes string `json:"notes"`
}

func (s *Service) updatePet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	petID := chi.URLParam(r, "id")

	var req UpdatePetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}

	p, err := s.PetManager.GetByID(ctx, petID)
	if err != nil {
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update pet"))
		return
	}
	if p == nil || p.CustomerID != claims.ID {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find pet with specific ID"))
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Breed != "" {
		p.Breed = req.Breed
	}
	if req.Notes != "" {
		p.Notes = req.Notes
	}
	if err := s.PetManager.Update(ctx, p); err != nil {
		s.Logger.Error("Unable to update pet",
			zap.Error(err),
			zap.String("PetID", petID),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to update pet"))
		return
	}

	resp.WriteResponse(w, r, p)
}

// Router will return the routes under pet API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listPets)
	r.Post("/", s.newPet)
	r.Get("/{id}", s.getPet)
	r.Put("/{id}", s.updatePet)

	return r
}
