package directory

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/discord"
	"github.com/rollvault/rollvault/internal/shared"
	_ "github.com/rollvault/rollvault/internal/testing/guard"
)

// fakePlatform knows one user and which guilds the bot shares with them.
func fakePlatform(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		switch {
		case r.URL.Path == "/users/@me":
			if header != "Bearer tok-alice" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":"alice","username":"alice"}`))
		case r.URL.Path == "/users/@me/guilds":
			if header != "Bearer tok-alice" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`[
				{"id":"g1","name":"Beta Keep","owner":false},
				{"id":"g2","name":"Alpha Hall","owner":true},
				{"id":"g3","name":"No Bot Here","owner":false}
			]`))
		case r.URL.Path == "/guilds/g1" || r.URL.Path == "/guilds/g2":
			if !strings.HasPrefix(header, "Bot ") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":"` + strings.TrimPrefix(r.URL.Path, "/guilds/") + `","name":"x"}`))
		case strings.HasPrefix(r.URL.Path, "/guilds/"):
			w.WriteHeader(http.StatusNotFound)
		case r.URL.Path == "/users/bob":
			_, _ = w.Write([]byte(`{"id":"bob","username":"bob"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newDirectoryAPI(t *testing.T) (http.Handler, func(*http.Request)) {
	t.Helper()
	srv := fakePlatform(t)
	t.Cleanup(srv.Close)

	client := discord.NewClient(discord.ClientConfig{BaseURL: srv.URL, BotToken: "bot-token"})
	oauthFlow := discord.NewOAuth(discord.OAuthConfig{ClientID: "client-id", BaseURL: srv.URL, DevMode: true})
	resolver := discord.NewResolver(client, oauthFlow)
	authz := discord.NewAuthorizer(client)
	handler := NewHandler(slog.Default(), client, authz, resolver)

	sess := &shared.Session{ID: "sess-alice"}
	auth.SaveToken(sess, &oauth2.Token{
		AccessToken: "tok-alice",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	})
	signIn := func(r *http.Request) {
		r.Header.Set("X-Test-User", "alice")
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Test-User") != "" {
				r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/api/user", handler.MountUserRoutes)
	router.Route("/api/server/{serverID}", handler.MountServerRoute)
	return router, signIn
}

func TestMeReturnsResolvedIdentity(t *testing.T) {
	router, signIn := newDirectoryAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/@me", nil)
	signIn(req)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"id":"alice"`)
}

func TestMeRequiresSignIn(t *testing.T) {
	router, _ := newDirectoryAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/@me", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestMyServersFilteredToSharedGuildsAndSorted(t *testing.T) {
	router, signIn := newDirectoryAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/@me/servers", nil)
	signIn(req)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)

	var guilds []discord.Guild
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &guilds))
	require.Len(t, guilds, 2, "guilds without the bot must be filtered out")
	require.Equal(t, "Alpha Hall", guilds[0].Name)
	require.Equal(t, "Beta Keep", guilds[1].Name)
}

func TestUserLookupPassesThrough(t *testing.T) {
	router, signIn := newDirectoryAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/bob", nil)
	signIn(req)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"id":"bob","username":"bob"}`, res.Body.String())
}

func TestServerLookupReportsUpstreamStatus(t *testing.T) {
	router, signIn := newDirectoryAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/server/g1/", nil)
	signIn(req)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/server/g404/", nil)
	signIn(req)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.Equal(t, http.StatusNotFound, res.Code)
}
