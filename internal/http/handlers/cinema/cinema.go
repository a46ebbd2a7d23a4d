package cinema

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/filmclub/cinema-service/internal/cache"
	"github.com/filmclub/cinema-service/internal/cleanup"
	"github.com/filmclub/cinema-service/internal/events"
	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/types"
	"github.com/filmclub/cinema-service/internal/utils/response"
)

type CreateEventRequest struct {
	Title        string    `json:"title" validate:"required"`
	Description  string    `json:"description"`
	MediaURL     string    `json:"media_url" validate:"required,url"`
	PosterURL    string    `json:"poster_url" validate:"omitempty,url"`
	CatalogueRef string    `json:"catalogue_ref"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	EndsAt       time.Time `json:"ends_at" validate:"required"`
	CreatedBy    int       `json:"created_by"`
}

// EventView is an event with its wall-clock phase computed at read time.
type EventView struct {
	types.Event
	Phase types.EventPhase `json:"phase"`
}

// Current returns the event to surface on the client's cinema screen.
// @Summary Get the current live, upcoming or latest event
// @Tags cinema
// @Produce json
// @Success 200 {object} response.Response "Current event"
// @Failure 404 {object} response.Response "No events scheduled"
// @Router /api/cinema/current [get]
func Current(cacheService *cache.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()

		ev, ok := cacheService.CurrentEvent(r.Context(), now)
		if !ok {
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("no events scheduled")))
			return
		}

		view := EventView{Event: ev, Phase: types.Phase(now, ev.StartsAt, ev.EndsAt)}
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Current event fetched", view))
	}
}

// List returns all stored events with their phases.
// @Summary List scheduled events
// @Tags cinema
// @Produce json
// @Success 200 {object} response.Response "Events"
// @Router /api/cinema/events [get]
func List(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()

		events := store.Events()
		views := make([]EventView, 0, len(events))
		for _, ev := range events {
			views = append(views, EventView{Event: ev, Phase: types.Phase(now, ev.StartsAt, ev.EndsAt)})
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Events fetched", views))
	}
}

// Create schedules a new event. Admin-gated at the router.
// @Summary Schedule a live event
// @Tags cinema
// @Accept json
// @Produce json
// @Param event body CreateEventRequest true "Event details"
// @Success 201 {object} response.Response "Event created"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /api/cinema/events [post]
func Create(store *storage.Store, cacheService *cache.Service, publisher events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEventRequest

		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
			return
		} else if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		validate := validator.New()
		if err := validate.Struct(req); err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		ev, err := store.CreateEvent(types.Event{
			Title:        req.Title,
			Description:  req.Description,
			MediaURL:     req.MediaURL,
			PosterURL:    req.PosterURL,
			CatalogueRef: req.CatalogueRef,
			StartsAt:     req.StartsAt.UTC(),
			EndsAt:       req.EndsAt.UTC(),
			CreatedBy:    req.CreatedBy,
		})
		if err != nil {
			if errors.Is(err, storage.ErrInvalidSchedule) {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		slog.Info("Event created", slog.Int("event_id", ev.ID), slog.String("title", ev.Title))

		cacheService.InvalidateCinema(r.Context())

		if publisher != nil {
			if err := publisher.PublishEventScheduled(ev); err != nil {
				slog.Warn("Failed to announce event", slog.String("error", err.Error()))
			}
		}

		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Event created", ev))
	}
}

// CleanupStatus exposes the expired-event backlog and reclamation failure
// records. Admin-gated at the router.
// @Summary Inspect the cleanup backlog
// @Tags admin
// @Produce json
// @Success 200 {object} response.Response "Cleanup status"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /api/admin/cinema/cleanup-status [get]
func CleanupStatus(engine *cleanup.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cleanup status fetched", engine.Status()))
	}
}
