package gateway_api_client

const (
	// Default gateway address for local development
	DefaultBaseURL = "http://localhost:8081"

	// API Endpoints
	ActiveMatchesEndpoint = "/api/matches/active"
	MatchesEndpoint       = "/api/matches/"
	StateSuffix           = "/state"
	EventsSegment         = "/events/"

	// Headers
	JsonHeader      = "Content-Type"
	JsonContentType = "application/json"
)
