package interfaces

import "time"

// UserRole defines API access levels.
type UserRole string

const (
	UserRoleViewer   UserRole = "viewer"
	UserRoleOperator UserRole = "operator"
	UserRoleAdmin    UserRole = "admin"
)

// APIUser represents an authenticated API user.
type APIUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIKeyInfo holds metadata for an issued API key.
type APIKeyInfo struct {
	KeyID      string     `json:"keyId"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	IsActive   bool       `json:"isActive"`
}

// RateLimit describes a token bucket limit.
type RateLimit struct {
	RequestsPerMinute int
	BurstSize         int
	WindowSize        time.Duration
}

// RateLimitInfo reports a client's current rate limit state.
type RateLimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetTime  time.Time     `json:"resetTime"`
	WindowSize time.Duration `json:"windowSize"`
}

// MessageType identifies a WebSocket stream message.
type MessageType string

const (
	MessageTypeStats  MessageType = "stats"
	MessageTypeResult MessageType = "result"
	MessageTypeStatus MessageType = "status"
)

// WebSocketMessage is the envelope for all streamed messages.
type WebSocketMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
