// Package reconciler owns the local copy of one device's state for the
// lifetime of a single connection.
//
// A [Reconciler] moves through four phases:
//
//	Uninitialized -> Priming -> Live -> TornDown
//
// [Reconciler.Prime] pulls the catalog, the playback status and the volume in
// parallel. [Reconciler.Attach] hands over the push channel and makes the
// reconciler Live; from then on [Reconciler.HandleEvent] overwrites whichever
// field an event names. Every change replaces the whole value on the matching
// [feed.Feed], so observers only ever see complete snapshots.
//
// Commands go to the device through a [Commander]. Whether a successful
// command changes local state right away depends on the command:
//
//   - play and stop never touch the status; the device pushes the new status
//   - set volume applies the level the device confirmed
//   - catalog edits follow the reconciler's [CatalogPolicy]
//
// After [Reconciler.Teardown] nothing reaches the feeds any more: late pull
// results, command results and push events are all discarded.
package reconciler
