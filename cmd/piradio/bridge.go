package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/radio"
)

// sender is the part of *tea.Program the bridge uses.
type sender interface {
	Send(msg tea.Msg)
}

// startBridge launches one watcher per feed. The watchers only call
// p.Send(); they never touch model state directly. The returned function
// cancels the watchers and waits for them to exit, so no stale messages are
// sent after it returns.
func startBridge(ctx context.Context, p sender, ctrl controller) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		forward(bridgeCtx, p, ctrl.Stations(), func(v []radio.Station) tea.Msg { return stationsMsg(v) })
	})
	wg.Go(func() {
		forward(bridgeCtx, p, ctrl.Status(), func(v radio.PlaybackStatus) tea.Msg { return statusMsg(v) })
	})
	wg.Go(func() {
		forward(bridgeCtx, p, ctrl.Volume(), func(v int) tea.Msg { return volumeMsg(v) })
	})

	return func() {
		cancel()
		wg.Wait()
	}
}

// forward sends the current value of f, then every later one.
func forward[T any](ctx context.Context, p sender, f *feed.Feed[T], wrap func(T) tea.Msg) {
	sub := f.Subscribe(1)
	defer f.Unsubscribe(sub)

	if v, ok := f.Value(); ok {
		p.Send(wrap(v))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-sub.C:
			if !ok {
				return
			}
			p.Send(wrap(v))
		}
	}
}
