// Package server implements the core HTTP and WebSocket server functionality for Yapper.
//
// The heart of the package is the room registry and the broadcast hub: the
// registry tracks which connections belong to which room, and the hub
// sequences persistence and fan-out so that every member of a room observes
// events in the same order they were durably written. The remaining files
// cover configuration, per-connection pumps, routing, and the REST endpoints
// around the core.
package server
