package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellnesscms/api/internal/audit"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/security"
	"wellnesscms/api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuthorizer map[string]service.Principal

var denials = map[string]*service.AccessError{
	"":        {Code: service.CodeNoToken, Message: "Authentication required"},
	"expired": {Code: service.CodeTokenExpired, Message: "Token has expired"},
	"gone":    {Code: service.CodeUserNotFound, Message: "User not found"},
	"demoted": {Code: service.CodeInsufficientPrivileges, Message: "Insufficient privileges"},
	"off":     {Code: service.CodeAccountDeactivated, Message: "Account is deactivated"},
	"outage":  {Code: service.CodeInternal, Message: "Internal server error"},
}

func (s stubAuthorizer) Authorize(_ context.Context, token string) (service.Principal, *service.AccessError) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	if d, ok := denials[token]; ok {
		return service.Principal{Claims: &security.AdminClaims{AccountID: "acc-1"}}, d
	}
	return service.Principal{}, &service.AccessError{Code: service.CodeInvalidToken, Message: "Invalid token"}
}

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Record(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func principal(id string, role models.Role) service.Principal {
	return service.Principal{
		Account: models.Account{ID: id, Role: role, IsActive: true},
		Claims:  &security.AdminClaims{AccountID: id, SessionID: "sess-" + id},
		Session: models.Session{ID: "sess-" + id, AccountID: id, Active: true},
	}
}

func newRouter(auth Authorizer, rec audit.Recorder) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.Nop()), Recovery(zerolog.Nop()))
	r.GET("/guarded", Guard(auth, rec), func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": p.Account.ID})
	})
	r.GET("/super", Guard(auth, rec), RequireRoles(models.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/optional", OptionalGuard(auth), func(c *gin.Context) {
		_, ok := CurrentPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGuardCodes(t *testing.T) {
	auth := stubAuthorizer{"good": principal("acc-1", models.RoleAdmin)}
	cases := []struct {
		token  string
		status int
		code   string
	}{
		{"", http.StatusUnauthorized, "NO_TOKEN"},
		{"expired", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"garbage", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"gone", http.StatusUnauthorized, "USER_NOT_FOUND"},
		{"demoted", http.StatusForbidden, "INSUFFICIENT_PRIVILEGES"},
		{"off", http.StatusForbidden, "ACCOUNT_DEACTIVATED"},
		{"outage", http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := &recorder{}
			r := newRouter(auth, rec)
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.code, body["code"])

			require.Len(t, rec.events, 1)
			assert.Equal(t, audit.ActionAccessDenied, rec.events[0].Action)
			assert.Equal(t, tc.code, rec.events[0].Code)
			assert.Equal(t, "/guarded", rec.events[0].Endpoint)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "infrastructure", rec.events[0].Metadata["reason"])
			} else {
				assert.Nil(t, rec.events[0].Metadata)
			}
		})
	}
}

func TestGuardGrantIsAudited(t *testing.T) {
	rec := &recorder{}
	r := newRouter(stubAuthorizer{"good": principal("acc-1", models.RoleAdmin)}, rec)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("User-Agent", "ua/1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acc-1", decode(t, w)["id"])
	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, audit.ActionAccessGranted, e.Action)
	assert.Equal(t, "acc-1", e.ActorID)
	assert.Equal(t, "sess-acc-1", e.SessionID)
	assert.Equal(t, "ua/1", e.UserAgent)
	assert.Equal(t, http.MethodGet, e.Method)
}

func TestCookieTakesPrecedence(t *testing.T) {
	auth := stubAuthorizer{
		"cookie-token": principal("from-cookie", models.RoleAdmin),
		"header-token": principal("from-header", models.RoleAdmin),
	}
	r := newRouter(auth, &recorder{})

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "from-cookie", decode(t, w)["id"])
}

func TestRequireRoles(t *testing.T) {
	auth := stubAuthorizer{
		"admin": principal("acc-1", models.RoleAdmin),
		"root":  principal("acc-2", models.RoleSuperAdmin),
	}
	r := newRouter(auth, &recorder{})

	for token, want := range map[string]int{"admin": http.StatusForbidden, "root": http.StatusNoContent} {
		req := httptest.NewRequest(http.MethodGet, "/super", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, token)
	}
}

func TestOptionalGuardNeverRejects(t *testing.T) {
	r := newRouter(stubAuthorizer{"good": principal("acc-1", models.RoleAdmin)}, &recorder{})

	for token, want := range map[string]bool{"": false, "expired": false, "off": false, "good": true} {
		req := httptest.NewRequest(http.MethodGet, "/optional", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, decode(t, w)["authenticated"], token)
	}
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	r := newRouter(stubAuthorizer{}, &recorder{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://console.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://console.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://console.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
