package app_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rollvault/rollvault/internal/app"
	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/characters"
	"github.com/rollvault/rollvault/internal/directory"
	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/observability"
	"github.com/rollvault/rollvault/internal/shared"
	"github.com/rollvault/rollvault/internal/sheet"
	_ "github.com/rollvault/rollvault/testing"
)

type noopAuthRepo struct{}

func (noopAuthRepo) CreateSession(ctx context.Context, rec auth.SessionRecord) error { return nil }
func (noopAuthRepo) DeleteSession(ctx context.Context, id string) error              { return nil }
func (noopAuthRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrf-secret")
	logger := slog.Default()

	client := discord.NewClient(discord.ClientConfig{BaseURL: "http://127.0.0.1:0"})
	oauthFlow := discord.NewOAuth(discord.OAuthConfig{ClientID: "client-id", DevMode: true})
	resolver := discord.NewResolver(client, oauthFlow)
	authz := discord.NewAuthorizer(client)

	authService := auth.NewService(noopAuthRepo{})
	characterService := characters.NewService(characters.NewRepository(nil), authz)
	sheetService := sheet.NewService(sheet.NewRepository(nil), characterService)

	return app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      auth.NewHandler(logger, authService, oauthFlow, resolver, sessionManager),
		DirectoryHandler: directory.NewHandler(logger, client, authz, resolver),
		CharacterHandler: characters.NewHandler(logger, characterService, resolver),
		SheetHandler:     sheet.NewHandler(logger, sheetService, resolver),
		Metrics:          observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "rollvault_discord_retries_total")
}

func TestSafeRequestsIssueSessionCookieAndCSRFToken(t *testing.T) {
	router := newRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, res.Result().Cookies(), "expected a session cookie")
	require.NotEmpty(t, res.Header().Get(shared.CSRFHeader), "expected a csrf token header")
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	router := newRouter(t)

	// Prime a session and collect cookie plus token.
	prime := httptest.NewRecorder()
	router.ServeHTTP(prime, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	cookie := prime.Result().Cookies()[0]
	token := prime.Header().Get(shared.CSRFHeader)
	require.NotEmpty(t, token)

	// Without the token the mutation is refused.
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)

	// Echoing it back lets the mutation through.
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, token)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusSeeOther, res.Code)
}

func TestUnauthenticatedAPIRequest(t *testing.T) {
	router := newRouter(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/user/@me", nil))

	require.Equal(t, http.StatusUnauthorized, res.Code)
}
