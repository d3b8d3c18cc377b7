package gateway_api_client

import (
	"context"
	"fmt"

	"github.com/pitchside/livematch/internal/live/gateway"
	"github.com/pitchside/livematch/internal/live/state"
)

// ActiveMatches lists the rooms the gateway currently holds.
func (c *GatewayApiClient) ActiveMatches(ctx context.Context) ([]gateway.MatchSummary, error) {
	var matches []gateway.MatchSummary
	if err := c.GetJSON(ctx, ActiveMatchesEndpoint, &matches); err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	return matches, nil
}

// MatchState fetches one room's full snapshot: match state, the
// reporter roster, and player shifts.
func (c *GatewayApiClient) MatchState(ctx context.Context, matchID string) (gateway.MatchStateResponse, error) {
	var resp gateway.MatchStateResponse
	if err := c.GetJSON(ctx, MatchesEndpoint+matchID+StateSuffix, &resp); err != nil {
		return gateway.MatchStateResponse{}, fmt.Errorf("failed to get state for match %s: %w", matchID, err)
	}
	return resp, nil
}

// SeedMatch creates the room if needed and merges the seed into it.
// Seeding a match whose report is already submitted fails with an
// *clients.APIError carrying http.StatusConflict.
func (c *GatewayApiClient) SeedMatch(ctx context.Context, matchID string, seed gateway.MatchSeed) (state.MatchState, error) {
	var st state.MatchState
	if err := c.PostJSON(ctx, MatchesEndpoint+matchID, seed, &st); err != nil {
		return state.MatchState{}, fmt.Errorf("failed to seed match %s: %w", matchID, err)
	}
	return st, nil
}

// RetractEvent removes a mis-entered event and returns it.
func (c *GatewayApiClient) RetractEvent(ctx context.Context, matchID, eventID string) (state.MatchEvent, error) {
	var ev state.MatchEvent
	if err := c.DeleteJSON(ctx, MatchesEndpoint+matchID+EventsSegment+eventID, &ev); err != nil {
		return state.MatchEvent{}, fmt.Errorf("failed to retract event %s from match %s: %w", eventID, matchID, err)
	}
	return ev, nil
}
