// Package directory exposes read-only views of platform users and guilds:
// who the caller is, which of their guilds the bot shares, and bot-side
// lookups of arbitrary users and guilds.
package directory

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/platform/httpx"
)

// botLookupConcurrency bounds the fan-out of per-guild bot membership
// checks when filtering a user's guild list.
const botLookupConcurrency = 4

// Handler wires the directory endpoints.
type Handler struct {
	logger   *slog.Logger
	client   *discord.Client
	authz    *discord.Authorizer
	resolver *discord.Resolver
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, client *discord.Client, authz *discord.Authorizer, resolver *discord.Resolver) *Handler {
	return &Handler{logger: logger, client: client, authz: authz, resolver: resolver}
}

// MountUserRoutes registers /user endpoints.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Get("/@me", h.me)
	r.Get("/@me/servers", h.myServers)
	r.Get("/{userID}", h.user)
}

// MountServerRoute registers the guild lookup. Expects a serverID URL
// parameter from the enclosing route.
func (h *Handler) MountServerRoute(r chi.Router) {
	r.Get("/", h.server)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, _, err := auth.CurrentUser(r.Context(), h.resolver)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

// myServers lists the caller's guilds, filtered to those the bot is also
// installed in; a character feature only exists where the bot does.
func (h *Handler) myServers(w http.ResponseWriter, r *http.Request) {
	user, ts, err := auth.CurrentUser(r.Context(), h.resolver)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if user == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}

	resp, err := h.client.AsUser(r.Context(), ts, http.MethodGet, "/users/@me/guilds")
	if err != nil {
		h.logger.Warn("list guilds", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUpstream)
		return
	}
	if !resp.OK() {
		httpx.Problem(w, resp.StatusCode, "Upstream Error", "guild listing failed")
		return
	}
	var guilds []discord.Guild
	if err := json.Unmarshal(resp.Body, &guilds); err != nil {
		httpx.RespondError(w, httpx.ErrUpstream)
		return
	}

	shared := make([]discord.Guild, 0, len(guilds))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(botLookupConcurrency)
	for _, guild := range guilds {
		guild := guild
		g.Go(func() error {
			if h.authz.BotInGuild(ctx, guild.ID) {
				mu.Lock()
				shared = append(shared, guild)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(shared, func(i, j int) bool { return shared[i].Name < shared[j].Name })

	httpx.JSON(w, http.StatusOK, shared)
}

// user proxies a bot-side user lookup, passing the upstream answer through.
func (h *Handler) user(w http.ResponseWriter, r *http.Request) {
	resp, err := h.client.Bot(r.Context(), http.MethodGet, "/users/"+chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Warn("user lookup", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUpstream)
		return
	}
	if !resp.OK() {
		httpx.Problem(w, resp.StatusCode, "Upstream Error", "user lookup failed")
		return
	}
	httpx.Raw(w, http.StatusOK, resp.Body)
}

// server proxies a bot-side guild lookup.
func (h *Handler) server(w http.ResponseWriter, r *http.Request) {
	resp, err := h.client.Bot(r.Context(), http.MethodGet, "/guilds/"+chi.URLParam(r, "serverID"))
	if err != nil {
		h.logger.Warn("guild lookup", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUpstream)
		return
	}
	if !resp.OK() {
		httpx.Problem(w, resp.StatusCode, "Upstream Error", "guild lookup failed")
		return
	}
	httpx.Raw(w, http.StatusOK, resp.Body)
}
