package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/observability"
)

// headerVerifier authenticates requests carrying X-Test-Role
func headerVerifier(_ context.Context, r *http.Request) (auth.Principal, error) {
	role := r.Header.Get("X-Test-Role")
	if role == "" {
		return auth.Principal{}, auth.ErrNoSessionFound
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{ID: "u-" + role, Email: role + "@shop.test", Role: parsed}, nil
}

type chainFixture struct {
	router   *gin.Engine
	registry *auth.Registry
	calls    int
	seen     []auth.Principal
}

func newChainFixture(t *testing.T) *chainFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := auth.NewRegistry(
		auth.NewStrategy("header", auth.VerifierFunc(headerVerifier)),
		auth.NewStrategy("expired", auth.VerifierFunc(func(context.Context, *http.Request) (auth.Principal, error) {
			return auth.Principal{}, auth.ErrTokenExpired
		})),
		auth.NewStrategy("broken", auth.VerifierFunc(func(context.Context, *http.Request) (auth.Principal, error) {
			return auth.Principal{}, errors.New("identity store: connection refused")
		})),
	)
	require.NoError(t, err)

	f := &chainFixture{router: gin.New(), registry: registry}
	f.router.Use(ErrorReporter(zerolog.Nop()))
	return f
}

func (f *chainFixture) handler(c *gin.Context) {
	f.calls++
	p, _ := auth.PrincipalFrom(c.Request.Context())
	f.seen = append(f.seen, p)
	c.JSON(http.StatusOK, p)
}

func (f *chainFixture) mount(t *testing.T, path, strategy string, roles ...string) {
	t.Helper()
	var handlers []gin.HandlerFunc
	if strategy != "" {
		gate, err := Gate(f.registry, strategy, zerolog.Nop())
		require.NoError(t, err)
		handlers = append(handlers, gate)
	}
	if len(roles) > 0 {
		policy, err := auth.NewRolePolicy(roles...)
		require.NoError(t, err)
		handlers = append(handlers, Guard(policy, path, zerolog.Nop()))
	}
	f.router.GET(path, append(handlers, f.handler)...)
}

func (f *chainFixture) get(path, role string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		r.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGate_UnknownStrategyFailsAtRegistration(t *testing.T) {
	f := newChainFixture(t)
	_, err := Gate(f.registry, "oauth2", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrStrategyNotFound)
	assert.Contains(t, err.Error(), "oauth2")
}

func TestGate_RejectsWithoutCallingHandler(t *testing.T) {
	f := newChainFixture(t)
	f.mount(t, "/header", "header")
	f.mount(t, "/expired", "expired")

	w := f.get("/header", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, errorResponse{Status: "error", Error: "No active session", Kind: "NoSessionFound"}, decodeError(t, w))

	w = f.get("/expired", "admin")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TokenExpired", decodeError(t, w).Kind)

	assert.Zero(t, f.calls)
}

func TestGate_UnknownErrorIsGeneric500(t *testing.T) {
	f := newChainFixture(t)
	f.mount(t, "/broken", "broken")

	w := f.get("/broken", "user")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "Internal server error", body.Error)
	assert.Empty(t, body.Kind)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Zero(t, f.calls)
}

func TestGuard_AllowsListedRolesOnly(t *testing.T) {
	f := newChainFixture(t)
	f.mount(t, "/shoppers", "header", "user", "premium")
	f.mount(t, "/admin", "header", "admin")

	before := testutil.ToFloat64(observability.AuthzDenialsTotal.WithLabelValues("/admin"))

	w := f.get("/shoppers", "user")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.seen, 1)
	assert.Equal(t, auth.Principal{ID: "u-user", Email: "user@shop.test", Role: auth.RoleUser}, f.seen[0])

	w = f.get("/admin", "user")
	assert.Equal(t, http.StatusForbidden, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "InsufficientRole", body.Kind)
	assert.NotContains(t, body.Error, "admin")
	assert.Equal(t, before+1, testutil.ToFloat64(observability.AuthzDenialsTotal.WithLabelValues("/admin")))

	// No hierarchy: admin is not implicitly a shopper
	w = f.get("/shoppers", "admin")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.get("/admin", "admin")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, f.calls)
}

func TestGuard_WithoutPrincipalFailsClosed(t *testing.T) {
	f := newChainFixture(t)
	f.mount(t, "/unguarded", "", "admin")

	w := f.get("/unguarded", "admin")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, f.calls)
}

func TestGate_SameRequestSamePrincipal(t *testing.T) {
	f := newChainFixture(t)
	f.mount(t, "/header", "header", "premium")

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.get("/header", "premium").Code)
	}
	require.Len(t, f.seen, 2)
	assert.Equal(t, f.seen[0], f.seen[1])
}

func TestGate_SecondGateCannotReplacePrincipal(t *testing.T) {
	f := newChainFixture(t)
	first, err := Gate(f.registry, "header", zerolog.Nop())
	require.NoError(t, err)
	second, err := Gate(f.registry, "header", zerolog.Nop())
	require.NoError(t, err)
	f.router.GET("/twice", first, second, f.handler)

	w := f.get("/twice", "user")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, f.calls)
}

func TestErrorReporter_LeavesWrittenResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorReporter(zerolog.Nop()))
	router.GET("/written", func(c *gin.Context) {
		c.JSON(http.StatusTeapot, gin.H{"status": "brewing"})
		_ = c.Error(errors.New("late failure"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.JSONEq(t, `{"status":"brewing"}`, w.Body.String())
}

func TestGate_ConcurrentRequestsKeepTheirOwnPrincipal(t *testing.T) {
	f := newChainFixture(t)
	gate, err := Gate(f.registry, "header", zerolog.Nop())
	require.NoError(t, err)
	f.router.GET("/whoami", gate, func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"header": c.GetHeader("X-Test-Role"), "principal": p})
	})

	roles := []string{"user", "premium", "admin"}
	const perRole = 30

	var wg sync.WaitGroup
	results := make(chan *httptest.ResponseRecorder, len(roles)*perRole)
	for i := 0; i < perRole; i++ {
		for _, role := range roles {
			wg.Add(1)
			go func(role string) {
				defer wg.Done()
				results <- f.get("/whoami", role)
			}(role)
		}
	}
	wg.Wait()
	close(results)

	seen := make(map[string]int)
	for w := range results {
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			Header    string         `json:"header"`
			Principal auth.Principal `json:"principal"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, body.Header, string(body.Principal.Role))
		assert.Equal(t, "u-"+body.Header, body.Principal.ID)
		assert.Equal(t, body.Header+"@shop.test", body.Principal.Email)
		seen[body.Header]++
	}
	for _, role := range roles {
		assert.Equal(t, perRole, seen[role], role)
	}
}
