// Package radio holds the value types shared by every piradio component:
// the station catalog entry, the playback status reported by the device, the
// connection settings, and the error taxonomy used across both channels.
//
// The types carry no behaviour beyond normalization and small helpers. All
// state they describe is owned by the remote service.
package radio
