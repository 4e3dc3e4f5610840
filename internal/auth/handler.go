package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/platform/httpx"
	"github.com/rollvault/rollvault/internal/shared"
)

// DefaultScopes are requested when the login link does not name any.
// identify resolves the caller, guilds lists their servers.
var DefaultScopes = []string{"identify", "guilds"}

// Handler wires HTTP endpoints for the OAuth2 login flow.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	oauth          *discord.OAuth
	resolver       *discord.Resolver
	sessionManager *shared.SessionManager
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, oauth *discord.OAuth, resolver *discord.Resolver, sessions *shared.SessionManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		oauth:          oauth,
		resolver:       resolver,
		sessionManager: sessions,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.handleLogin)
	r.Get("/callback", h.handleCallback)
	r.Post("/logout", h.handleLogout)
}

// handleLogin stashes the CSRF state and redirects to the platform
// authorization page.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}

	scopes := DefaultScopes
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scopes = strings.Fields(raw)
	}

	url, state, err := h.oauth.AuthURL(scopes)
	if err != nil {
		h.logger.Error("build authorization url", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.Set(SessionStateKey, state)
	http.Redirect(w, r, url, http.StatusFound)
}

// handleCallback verifies state, exchanges the code, and binds the
// credential plus the resolved identity to the session.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		httpx.Problem(w, http.StatusBadRequest, "Authorization Denied", errParam)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}

	state := r.URL.Query().Get("state")
	expected := sess.Get(SessionStateKey)
	sess.Delete(SessionStateKey)
	if state == "" || expected == "" || state != expected {
		h.logger.Warn("oauth state mismatch")
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.ErrStateMismatch.Error())
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing authorization code")
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("exchange authorization code", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUpstream)
		return
	}
	SaveToken(sess, tok)

	user, _, err := h.resolver.Resolve(r.Context(), tok, func(t *oauth2.Token) {
		SaveToken(sess, t)
	})
	if err != nil {
		h.logger.Error("resolve identity after login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if user != nil {
		sess.SetUser(user.ID)
		if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, sessionExpiry(h.sessionManager), clientIP(r), r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout clears the session. The platform-side login is untouched;
// the user stays signed in to Discord itself.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func clientIP(r *http.Request) string {
	return r.RemoteAddr
}

func sessionExpiry(sm *shared.SessionManager) time.Time {
	return time.Now().Add(sm.TTL())
}
