// Package commandclient is the request/response side of the radio service.
//
// It contains:
//   - [Client] with one method per remote operation (catalog, playback, volume)
//   - [Auth] describing how the credential is attached to every request
//
// The client keeps no state besides the current target. [Client.Reconfigure]
// swaps the target synchronously; requests already in flight keep the target
// they started with.
package commandclient
