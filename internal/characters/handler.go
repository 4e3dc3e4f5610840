package characters

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// Handler wires the character endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *discord.Resolver
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *discord.Resolver) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver, validate: validator.New()}
}

// MountGuildRoutes registers the per-guild character routes. Expects a
// serverID URL parameter from the enclosing route.
func (h *Handler) MountGuildRoutes(r chi.Router) {
	r.Get("/", h.listGuild)
	r.Post("/", h.create)
	r.Get("/@me", h.mine)
}

// MountCharacterRoutes registers the per-character routes. Expects a
// characterID URL parameter from the enclosing route.
func (h *Handler) MountCharacterRoutes(r chi.Router) {
	r.Get("/", h.get)
	r.Patch("/", h.patch)
}

// characterJSON is the wire shape, matching what the companion front end
// consumes: the guild as "server", the owner as "user", plus an "own" flag
// relative to the caller.
type characterJSON struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Server string  `json:"server"`
	User   *string `json:"user"`
	Own    bool    `json:"own"`
}

func viewCharacter(c *Character, viewer *discord.User) characterJSON {
	out := characterJSON{ID: c.ID, Name: c.Name, Server: c.GuildID, User: c.OwnerID}
	if viewer != nil {
		out.Own = c.OwnedBy(viewer.ID)
	}
	return out
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

func characterID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "characterID"), 10, 64)
}

func (h *Handler) listGuild(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListGuild(r.Context(), viewer, chi.URLParam(r, "serverID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]characterJSON, 0, len(list))
	for i := range list {
		out = append(out, viewCharacter(&list[i], viewer))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetMine(r.Context(), viewer, chi.URLParam(r, "serverID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewCharacter(c, viewer))
}

type createCharacterRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=64"`
	Claim bool   `json:"claim"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var req createCharacterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name is required")
		return
	}
	c, err := h.service.Create(r.Context(), viewer, chi.URLParam(r, "serverID"), req.Name, req.Claim)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewCharacter(c, viewer))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, err := characterID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	c, own, err := h.service.GetForViewer(r.Context(), viewer, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := viewCharacter(c, viewer)
	out.Own = own
	httpx.JSON(w, http.StatusOK, out)
}

// patchCharacterRequest distinguishes an absent "user" key from an explicit
// null: "@me" claims, null unclaims, absent leaves claim state alone.
type patchCharacterRequest struct {
	Name *string         `json:"name"`
	User json.RawMessage `json:"user"`
}

var jsonNull = []byte("null")

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, err := characterID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req patchCharacterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}

	var c *Character
	switch {
	case req.User == nil:
		// No claim transition requested.
	case bytes.Equal(bytes.TrimSpace(req.User), jsonNull):
		if c, err = h.service.Unclaim(r.Context(), viewer, id); err != nil {
			httpx.RespondError(w, err)
			return
		}
	default:
		var target string
		if err := json.Unmarshal(req.User, &target); err != nil || target != "@me" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", `user must be "@me" or null`)
			return
		}
		if c, err = h.service.Claim(r.Context(), viewer, id); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	if req.Name != nil {
		if *req.Name == "" {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name must not be empty")
			return
		}
		if c, err = h.service.Rename(r.Context(), viewer, id, *req.Name); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}

	if c == nil {
		// Empty patch: behave like a secure read of the current state.
		var own bool
		if c, own, err = h.service.GetForViewer(r.Context(), viewer, id); err != nil {
			httpx.RespondError(w, err)
			return
		}
		out := viewCharacter(c, viewer)
		out.Own = own
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	httpx.JSON(w, http.StatusOK, viewCharacter(c, viewer))
}
