// Package adapter implements the remote data sources of the vouch graph.
//
// SubgraphClient talks to the GraphQL subgraph that indexes vouching events.
// It serves the primary event feed and per-account statistics. ProfileClient
// resolves display profiles for addresses through a bulk identity API.
//
// # Failure Model
//
// Event feed failures are fatal to a graph build and surface as NetworkError,
// RateLimitError or APIError. Statistics lookups return (nil, nil) when the
// account does not exist upstream. Profile lookups never fail: any error is
// logged and an empty mapping is returned, and a circuit breaker stops
// hammering the profile API while it is down.
package adapter
