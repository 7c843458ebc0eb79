// Package model defines the shared data types of the game client: the
// REST payloads, the server-pushed event names, and their notification
// shapes.
//
// Conventions:
//   - IDs: int64 database ids for games, players, and users
//   - Flags: FlexBool, since the backend serializes some booleans as 0/1
//   - Events: names carry the "chisme:" prefix exactly as sent on the wire
package model
