// Package pushchannel is the server-push side of the radio service.
//
// [Open] dials the device's WebSocket endpoint with the same credential the
// command client uses and starts one reader goroutine. Every text message is
// a JSON envelope {"event": name, "data": payload}; recognized events are
// decoded into an [Event] and handed to the [Handler] in arrival order.
// Unknown or malformed messages are logged and skipped.
//
// A channel never reconnects. When the connection drops, delivery stops and
// [Channel.Done] is closed; rebuilding is the session's job.
package pushchannel
