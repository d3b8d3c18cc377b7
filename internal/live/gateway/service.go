package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service is the live match gateway: WebSocket rooms, command routing
// and the REST state surface, wired together.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	roomManager       *RoomManager
	stateHandler      *StateHandler
}

// Config holds configuration for the live gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the live gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new live gateway service. sink receives every
// accepted mutation for downstream publication; pass nil to discard.
func NewService(config Config, sink EventSink, metrics MetricsCollector) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, metrics)
	roomManager := NewRoomManager(connectionManager, sink, metrics, clockwork.NewRealClock())
	connectionManager.SetRouter(roomManager)

	wsHandler := NewWebSocketHandler(connectionManager)
	stateHandler := NewStateHandler(roomManager)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		roomManager:       roomManager,
		stateHandler:      stateHandler,
	}
}

// Start begins the gateway service and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting live gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("live gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("live gateway routes registered")
}

// Rooms exposes the room manager for tools and tests.
func (s *Service) Rooms() *RoomManager {
	return s.roomManager
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "live_gateway"
	stats["status"] = "running"
	stats["match_rooms"] = s.roomManager.RoomCount()
	return stats
}
