// Package server implements the transport layer of the echat real-time
// delivery subsystem.
//
// The Gateway authenticates inbound WebSocket upgrades, hands each connection
// to a relay, and owns the two cross-connection shared structures: the
// connection registry and the presence event bus. The remaining files cover
// configuration, origin checking, routing, and HTTP server lifecycle so the
// transport concerns stay separated from delivery logic.
package server
