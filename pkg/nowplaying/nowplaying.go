// Package nowplaying raises a desktop notification whenever the radio starts,
// stops or switches station.
package nowplaying

import (
	"context"

	"github.com/gen2brain/beeep"
	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/rs/zerolog"
)

// DefaultTitle is used when Options.Title is empty.
const DefaultTitle = "piradio"

// NotifyFunc shows a notification. beeep.Notify satisfies it.
type NotifyFunc func(title, message, icon string) error

// Options configures a Notifier.
type Options struct {
	Title  string
	Icon   string // Path to an image; empty means the platform default.
	Notify NotifyFunc
	Logger *zerolog.Logger
}

// Notifier watches a status feed.
type Notifier struct {
	title  string
	icon   string
	notify NotifyFunc
	log    zerolog.Logger
}

// New creates a Notifier. A nil Notify uses beeep.
func New(opts Options) *Notifier {
	n := &Notifier{
		title:  opts.Title,
		icon:   opts.Icon,
		notify: opts.Notify,
		log:    logger.Component(logger.OrNop(opts.Logger), "nowplaying"),
	}
	if n.title == "" {
		n.title = DefaultTitle
	}
	if n.notify == nil {
		n.notify = beeep.Notify
	}

	return n
}

// Run notifies on every status change until ctx is done or the feed is
// closed. The status current at the time of the call is the baseline and is
// not announced.
func (n *Notifier) Run(ctx context.Context, status *feed.Feed[radio.PlaybackStatus]) error {
	sub := status.Subscribe(1)
	defer status.Unsubscribe(sub)

	prev, _ := status.Value()

	return n.watch(ctx, sub, prev)
}

func (n *Notifier) watch(ctx context.Context, sub *feed.Subscription[radio.PlaybackStatus], prev radio.PlaybackStatus) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cur, ok := <-sub.C:
			if !ok {
				return nil
			}
			if msg, changed := Message(prev, cur); changed {
				n.show(msg)
			}
			prev = cur
		}
	}
}

func (n *Notifier) show(msg string) {
	if err := n.notify(n.title, msg, n.icon); err != nil {
		n.log.Error().Err(err).Msg("failed to show notification")
		return
	}
	n.log.Debug().Str("message", msg).Msg("notified")
}

// Message describes the transition from prev to cur. It reports false when
// neither the selection nor the playing flag changed, or when the radio went
// from idle with nothing selected to the same (a session reset).
func Message(prev, cur radio.PlaybackStatus) (string, bool) {
	if prev.SelectedID() == cur.SelectedID() && prev.Playing == cur.Playing {
		return "", false
	}

	if cur.Selected == nil {
		if !prev.Playing {
			return "", false
		}
		return "Stopped", true
	}

	name := cur.Selected.Name
	if name == "" {
		name = cur.Selected.ID
	}

	if cur.Playing {
		return "Playing " + name, true
	}
	if prev.Playing && prev.SelectedID() == cur.SelectedID() {
		return "Stopped " + name, true
	}
	return name + " [STOPPED]", true
}
