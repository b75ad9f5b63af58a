package api

import (
	"net/http"
	"time"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Uptime           string    `json:"uptime"`
	WebSocketClients int       `json:"websocketClients"`
}

// healthCheck reports liveness. It carries no engine state on purpose: the
// endpoint must answer even when the pipeline is wedged.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:           "healthy",
		Timestamp:        time.Now(),
		Uptime:           time.Since(s.startTime).String(),
		WebSocketClients: s.websocketServer.ConnectedClients(),
	})
}
