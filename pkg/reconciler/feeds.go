package reconciler

import (
	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/radio"
)

// Feeds bundles the three observable state values. They outlive any single
// reconciler: the session hands the same Feeds to each new one.
type Feeds struct {
	Stations *feed.Feed[[]radio.Station]
	Status   *feed.Feed[radio.PlaybackStatus]
	Volume   *feed.Feed[int]
}

// NewFeeds returns feeds holding empty values.
func NewFeeds() *Feeds {
	return &Feeds{
		Stations: feed.New([]radio.Station{}),
		Status:   feed.New(radio.PlaybackStatus{}),
		Volume:   feed.New(0),
	}
}

// Reset publishes empty values on every feed.
func (f *Feeds) Reset() {
	f.Stations.Set([]radio.Station{})
	f.Status.Set(radio.PlaybackStatus{})
	f.Volume.Set(0)
}

// Close unsubscribes every observer of every feed.
func (f *Feeds) Close() {
	f.Stations.Close()
	f.Status.Close()
	f.Volume.Close()
}
