// Package transport implements the connection layer.
//
// The transport layer:
//   - Maintains one websocket session to the game server
//   - Authenticates the handshake with a bearer token
//   - Reconnects with bounded exponential backoff after drops
//   - Broadcasts connection-state changes to watchers
//   - Correlates acked commands (join/leave) with server responses
package transport
