package sheet

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// Handler mounts the CRUD routes for every attribute kind under a
// character route. One handler serves all six kinds; the schema rides
// along in the closure.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *discord.Resolver
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *discord.Resolver) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver}
}

// MountRoutes registers the attribute routes. Expects a characterID URL
// parameter from the enclosing route.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, schema := range Definitions() {
		r.Route("/"+schema.Kind, func(r chi.Router) {
			r.Get("/", h.list(schema))
			r.Post("/", h.create(schema))
			r.Route("/{itemID}", func(r chi.Router) {
				r.Get("/", h.get(schema))
				r.Patch("/", h.update(schema))
				r.Delete("/", h.remove(schema))
			})
		})
	}
}

func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (*discord.User, bool) {
	user, _, err := auth.CurrentUser(r.Context(), h.resolver)
	if err != nil {
		h.logger.Warn("resolve viewer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return nil, false
	}
	return user, true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func decodeFields(r *http.Request) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := httpx.DecodeJSON(r, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (h *Handler) list(schema Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := h.viewer(w, r)
		if !ok {
			return
		}
		characterID, err := pathID(r, "characterID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		entries, err := h.service.List(r.Context(), viewer, schema, characterID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entries)
	}
}

func (h *Handler) get(schema Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := h.viewer(w, r)
		if !ok {
			return
		}
		characterID, err := pathID(r, "characterID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		itemID, err := pathID(r, "itemID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		entry, err := h.service.Get(r.Context(), viewer, schema, characterID, itemID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entry)
	}
}

func (h *Handler) create(schema Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := h.viewer(w, r)
		if !ok {
			return
		}
		characterID, err := pathID(r, "characterID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		fields, err := decodeFields(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
		entry, err := h.service.Create(r.Context(), viewer, schema, characterID, fields)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, entry)
	}
}

func (h *Handler) update(schema Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := h.viewer(w, r)
		if !ok {
			return
		}
		characterID, err := pathID(r, "characterID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		itemID, err := pathID(r, "itemID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		fields, err := decodeFields(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
		entry, err := h.service.Update(r.Context(), viewer, schema, characterID, itemID, fields)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entry)
	}
}

func (h *Handler) remove(schema Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := h.viewer(w, r)
		if !ok {
			return
		}
		characterID, err := pathID(r, "characterID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		itemID, err := pathID(r, "itemID")
		if err != nil {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		if err := h.service.Delete(r.Context(), viewer, schema, characterID, itemID); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "successful"})
	}
}
