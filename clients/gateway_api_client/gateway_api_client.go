package gateway_api_client

import (
	"github.com/pitchside/livematch/clients"
)

// GatewayApiClient talks to the live gateway's REST surface: the
// active match listing, room snapshots, pre-kickoff seeding, and
// event retraction.
type GatewayApiClient struct {
	*clients.BaseClient
}

func NewGatewayApiClient(baseURL string) *GatewayApiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := &GatewayApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(JsonHeader, JsonContentType)

	return client
}
