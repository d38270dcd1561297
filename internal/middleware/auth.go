package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"wellnesscms/api/internal/audit"
	"wellnesscms/api/internal/service"
)

// TokenCookie carries the admin bearer token for the browser console.
const TokenCookie = "adminToken"

const principalKey = "admin_principal"

// Authorizer resolves a bearer token to a principal.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (service.Principal, *service.AccessError)
}

// ErrorBody is the JSON envelope of every failed request.
func ErrorBody(message, code string) gin.H {
	body := gin.H{"success": false, "error": message}
	if code != "" {
		body["code"] = code
	}
	return body
}

// ExtractToken reads the bearer token, preferring the cookie over the
// Authorization header.
func ExtractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// OriginFrom describes the request for sessions, throttling and audit.
func OriginFrom(c *gin.Context) service.Origin {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	return service.Origin{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		Method:    c.Request.Method,
		Endpoint:  endpoint,
	}
}

// Guard rejects the request unless it carries a token for a live session
// of a currently active privileged account. Grants and denials are both
// audited.
func Guard(auth Authorizer, recorder audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := OriginFrom(c)
		p, denied := auth.Authorize(c.Request.Context(), ExtractToken(c))

		event := audit.Event{
			Action:    audit.ActionAccessGranted,
			Outcome:   audit.OutcomeSuccess,
			IPAddress: origin.IPAddress,
			UserAgent: origin.UserAgent,
			Method:    origin.Method,
			Endpoint:  origin.Endpoint,
		}
		if p.Claims != nil {
			event.ActorID = p.Claims.AccountID
			event.ActorEmail = p.Claims.Email
			event.SessionID = p.Claims.SessionID
		}

		if denied != nil {
			event.Action = audit.ActionAccessDenied
			event.Outcome = audit.OutcomeFailure
			event.Code = string(denied.Code)
			if denied.Internal() {
				event.Metadata = map[string]any{"reason": "infrastructure"}
			}
			recorder.Record(event)

			c.AbortWithStatusJSON(denied.Status(), ErrorBody(denied.Message, string(denied.Code)))
			return
		}

		recorder.Record(event)
		c.Set(principalKey, p)
		c.Next()
	}
}

// OptionalGuard attaches the principal when the token is fully valid and
// otherwise lets the request through untouched.
func OptionalGuard(auth Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if p, denied := auth.Authorize(c.Request.Context(), token); denied == nil {
				c.Set(principalKey, p)
			}
		}
		c.Next()
	}
}

func CurrentPrincipal(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}
