package models

import "time"

type Session struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
	Active       bool      `json:"active"`
}

// Live reports whether the session is active and was used within ttl.
func (s Session) Live(now time.Time, ttl time.Duration) bool {
	return s.Active && !s.LastActivity.Add(ttl).Before(now)
}

// ResetToken is keyed in its registry by the SHA-256 digest of the token;
// the plaintext only ever leaves the process in the reset email.
type ResetToken struct {
	AccountID string    `json:"accountId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Consumed  bool      `json:"consumed"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t ResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
