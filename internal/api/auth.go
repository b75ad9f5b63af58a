package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
)

// AuthService implements bearer-token API authentication.
type AuthService struct {
	apiKeys map[string]*interfaces.APIKeyInfo
	users   map[string]*interfaces.APIUser
	mutex   sync.RWMutex
}

// NewAuthService creates an authentication service with a generated
// operator key. The key is logged once at startup; there is no other way
// to recover it.
func NewAuthService() *AuthService {
	service := &AuthService{
		apiKeys: make(map[string]*interfaces.APIKeyInfo),
		users:   make(map[string]*interfaces.APIUser),
	}

	operator := &interfaces.APIUser{
		ID:        "operator",
		Name:      "Operator",
		Role:      interfaces.UserRoleOperator,
		CreatedAt: time.Now(),
	}
	service.users[operator.ID] = operator

	key := "arb_engine_" + generateRandomString(32)
	service.apiKeys[key] = &interfaces.APIKeyInfo{
		KeyID:     "default",
		UserID:    operator.ID,
		Name:      "Default Operator Key",
		CreatedAt: time.Now(),
		IsActive:  true,
	}

	log.Printf("API key: %s", key)

	return service
}

// ValidateAPIKey validates an API key and returns the associated user.
func (a *AuthService) ValidateAPIKey(apiKey string) (*interfaces.APIUser, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	keyInfo, exists := a.apiKeys[apiKey]
	if !exists {
		return nil, fmt.Errorf("invalid API key")
	}
	if !keyInfo.IsActive {
		return nil, fmt.Errorf("API key is inactive")
	}
	if keyInfo.ExpiresAt != nil && time.Now().After(*keyInfo.ExpiresAt) {
		return nil, fmt.Errorf("API key has expired")
	}

	user, exists := a.users[keyInfo.UserID]
	if !exists {
		return nil, fmt.Errorf("user not found")
	}

	now := time.Now()
	keyInfo.LastUsedAt = &now

	return user, nil
}

// GenerateAPIKey issues a new key for an existing user.
func (a *AuthService) GenerateAPIKey(userID string) (string, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	user, exists := a.users[userID]
	if !exists {
		return "", fmt.Errorf("user not found")
	}

	apiKey := "arb_engine_" + generateRandomString(48)
	a.apiKeys[apiKey] = &interfaces.APIKeyInfo{
		KeyID:     generateRandomString(16),
		UserID:    userID,
		Name:      fmt.Sprintf("API key for %s", user.Name),
		CreatedAt: time.Now(),
		IsActive:  true,
	}

	return apiKey, nil
}

// RevokeAPIKey deactivates a key.
func (a *AuthService) RevokeAPIKey(apiKey string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	keyInfo, exists := a.apiKeys[apiKey]
	if !exists {
		return fmt.Errorf("API key not found")
	}
	keyInfo.IsActive = false
	return nil
}

type contextKey string

const (
	contextKeyUser   contextKey = "user"
	contextKeyAPIKey contextKey = "api_key"
)

// AuthMiddleware authenticates requests via the Authorization header.
func (a *AuthService) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		user, err := a.ValidateAPIKey(parts[1])
		if err != nil {
			http.Error(w, fmt.Sprintf("Authentication failed: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUser, user)
		ctx = context.WithValue(ctx, contextKeyAPIKey, parts[1])

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole ensures the authenticated user has at least the given role.
func RequireRole(role interfaces.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := r.Context().Value(contextKeyUser).(*interfaces.APIUser)
			if !ok {
				http.Error(w, "User not found in context", http.StatusInternalServerError)
				return
			}

			if !hasRequiredRole(user.Role, role) {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

func hasRequiredRole(userRole, requiredRole interfaces.UserRole) bool {
	roleHierarchy := map[interfaces.UserRole]int{
		interfaces.UserRoleViewer:   1,
		interfaces.UserRoleOperator: 2,
		interfaces.UserRoleAdmin:    3,
	}

	userLevel, userExists := roleHierarchy[userRole]
	requiredLevel, requiredExists := roleHierarchy[requiredRole]
	if !userExists || !requiredExists {
		return false
	}
	return userLevel >= requiredLevel
}
