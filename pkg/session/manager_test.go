package session_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/germanamz/piradio/internal/radiotest"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/germanamz/piradio/pkg/reconciler"
	"github.com/germanamz/piradio/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bbc  = radio.Station{ID: "1", Name: "BBC", URL: "http://a"}
	jazz = radio.Station{ID: "2", Name: "Jazz", URL: "http://b"}
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()

	m := session.New(session.Options{})
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func waitFor[T any](t *testing.T, get func(context.Context, func(T) bool) (T, error), match func(T) bool) T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := get(ctx, match)
	require.NoError(t, err)

	return v
}

func TestReconfigure_PrimesThenGoesLive(t *testing.T) {
	srv := radiotest.New(t,
		radiotest.WithAPIKey("key"),
		radiotest.WithStations(bbc),
		radiotest.WithVolume(40),
	)
	m := newManager(t)

	require.NoError(t, m.Reconfigure(context.Background(), srv.Config()))

	stations, _ := m.Stations().Value()
	status, _ := m.Status().Value()
	volume, _ := m.Volume().Value()
	assert.Equal(t, []radio.Station{bbc}, stations)
	assert.Equal(t, radio.PlaybackStatus{}, status)
	assert.Equal(t, 40, volume)

	require.NotNil(t, m.Current())
	assert.Equal(t, reconciler.Live, m.Current().Phase())
	assert.NotEmpty(t, m.Current().ID())
	assert.Equal(t, srv.Config(), m.Config())
	srv.WaitSockets(t, 1)
}

func TestReconfigure_TwiceKeepsOneSocket(t *testing.T) {
	srv := radiotest.New(t, radiotest.WithStations(bbc))
	m := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Reconfigure(ctx, srv.Config()))
	first := m.Current()
	require.NoError(t, m.Reconfigure(ctx, srv.Config()))

	srv.WaitSockets(t, 1)
	assert.Equal(t, 2, srv.Dials())
	assert.Equal(t, reconciler.TornDown, first.Phase())
	assert.NotEqual(t, first.ID(), m.Current().ID())
}

func TestReconfigure_SubscribersSurvive(t *testing.T) {
	a := radiotest.New(t, radiotest.WithStations(bbc), radiotest.WithVolume(10))
	b := radiotest.New(t, radiotest.WithStations(jazz), radiotest.WithVolume(70))
	m := newManager(t)
	ctx := context.Background()

	sub := m.Volume().Subscribe(8)

	require.NoError(t, m.Reconfigure(ctx, a.Config()))
	require.NoError(t, m.Reconfigure(ctx, b.Config()))

	var seen []int
	for len(seen) == 0 || seen[len(seen)-1] != 70 {
		select {
		case v := <-sub.C:
			seen = append(seen, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("volume feed stalled, saw %v", seen)
		}
	}
	assert.Equal(t, []int{0, 10, 0, 70}, seen)

	stations, _ := m.Stations().Value()
	assert.Equal(t, []radio.Station{jazz}, stations)

	a.WaitSockets(t, 0)
	b.WaitSockets(t, 1)

	b.BroadcastVolume(71)
	waitFor(t, m.Volume().Watch, func(v int) bool { return v == 71 })

	a.BroadcastVolume(11)
	time.Sleep(20 * time.Millisecond)
	v, _ := m.Volume().Value()
	assert.Equal(t, 71, v, "events from the old device never land")
}

func TestReconfigure_SupersededPullNeverLands(t *testing.T) {
	a := radiotest.New(t, radiotest.WithStations(bbc))
	b := radiotest.New(t, radiotest.WithStations(jazz))
	release := a.Hold(radiotest.RouteListStations)
	defer release()

	m := newManager(t)
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- m.Reconfigure(ctx, a.Config()) }()
	a.WaitRequests(t, radiotest.RouteListStations, 1)

	require.NoError(t, m.Reconfigure(ctx, b.Config()))

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded reconfigure did not return")
	}

	release()
	time.Sleep(20 * time.Millisecond)

	stations, _ := m.Stations().Value()
	assert.Equal(t, []radio.Station{jazz}, stations)
	assert.Equal(t, b.Config(), m.Config())
	a.WaitSockets(t, 0)
	b.WaitSockets(t, 1)
}

func TestReconfigure_CallerCancel(t *testing.T) {
	srv := radiotest.New(t)
	srv.Hold(radiotest.RouteStatus)
	m := newManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Reconfigure(ctx, srv.Config())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, m.Current())
	assert.ErrorIs(t, m.Stop(context.Background()), session.ErrNoSession)
}

func TestReconfigure_CallerCancelClearsPrimedState(t *testing.T) {
	srv := radiotest.New(t, radiotest.WithStations(bbc), radiotest.WithVolume(40))
	srv.Hold(radiotest.RouteStatus)
	m := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- m.Reconfigure(ctx, srv.Config()) }()

	waitFor(t, m.Volume().Watch, func(v int) bool { return v == 40 })
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconfigure did not return")
	}

	assert.Nil(t, m.Current())

	stations, _ := m.Stations().Value()
	volume, _ := m.Volume().Value()
	assert.Empty(t, stations)
	assert.Zero(t, volume)
}

func TestReconfigure_AuthRejected(t *testing.T) {
	srv := radiotest.New(t, radiotest.WithAPIKey("right"))
	m := newManager(t)

	cfg := srv.Config()
	cfg.Credential = "wrong"
	err := m.Reconfigure(context.Background(), cfg)

	var ce *radio.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cfg.Address, ce.Address)

	var auth *radio.AuthError
	assert.ErrorAs(t, err, &auth)

	assert.Zero(t, srv.OpenSockets())
	assert.NotNil(t, m.Current(), "the session stays current after a failed connect")
}

func TestReconfigure_PartialPullFailure(t *testing.T) {
	srv := radiotest.New(t, radiotest.WithStations(bbc))
	srv.Fail(radiotest.RouteGetVolume, http.StatusInternalServerError)
	m := newManager(t)

	err := m.Reconfigure(context.Background(), srv.Config())

	var ce *radio.ConnectError
	require.ErrorAs(t, err, &ce)
	var te *radio.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.Status)

	stations, _ := m.Stations().Value()
	assert.Equal(t, []radio.Station{bbc}, stations)
	assert.Equal(t, reconciler.Live, m.Current().Phase())
	srv.WaitSockets(t, 1)
}

func TestReconfigure_InvalidAddress(t *testing.T) {
	m := newManager(t)

	err := m.Reconfigure(context.Background(), radio.ConnectionConfig{Address: "ftp://pi"})

	var ce *radio.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Nil(t, m.Current())
	assert.Equal(t, "ftp://pi", m.Config().Address)
}

func TestCommands_WithoutSession(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.Play(ctx, "1"), session.ErrNoSession)
	assert.ErrorIs(t, m.Stop(ctx), session.ErrNoSession)
	assert.ErrorIs(t, m.Refresh(ctx), session.ErrNoSession)
	assert.ErrorIs(t, m.DeleteStation(ctx, "1"), session.ErrNoSession)

	_, err := m.SetVolume(ctx, 3)
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.VolumeUp(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.VolumeDown(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.AdjustVolume(ctx, 1)
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.CreateStation(ctx, radio.Station{Name: "x"})
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.UpdateStation(ctx, "1", radio.Station{Name: "x"})
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.GetStation(ctx, "1")
	assert.ErrorIs(t, err, session.ErrNoSession)
	_, err = m.RefreshStatus(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestCommands_Delegate(t *testing.T) {
	srv := radiotest.New(t, radiotest.WithAutoPush(), radiotest.WithStations(bbc), radiotest.WithVolume(50))
	m := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Reconfigure(ctx, srv.Config()))
	srv.WaitSockets(t, 1)

	require.NoError(t, m.Play(ctx, "1"))
	waitFor(t, m.Status().Watch, func(st radio.PlaybackStatus) bool { return st.IsPlaying("1") })

	v, err := m.VolumeUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 55, v)

	created, err := m.CreateStation(ctx, radio.Station{Name: "Jazz", URL: "http://b"})
	require.NoError(t, err)
	waitFor(t, m.Stations().Watch, func(l []radio.Station) bool { return len(l) == 2 })

	got, err := m.GetStation(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	require.NoError(t, m.Stop(ctx))
	waitFor(t, m.Status().Watch, func(st radio.PlaybackStatus) bool { return !st.Playing })

	st, err := m.RefreshStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", st.SelectedID())

	err = m.Play(ctx, "404")
	var stale *radio.StaleReferenceError
	assert.True(t, errors.As(err, &stale))
}

func TestClose(t *testing.T) {
	srv := radiotest.New(t)
	m := session.New(session.Options{})
	sub := m.Status().Subscribe(1)

	require.NoError(t, m.Reconfigure(context.Background(), srv.Config()))
	srv.WaitSockets(t, 1)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	srv.WaitSockets(t, 0)
	assert.Nil(t, m.Current())
	assert.ErrorIs(t, m.Stop(context.Background()), session.ErrClosed)
	assert.ErrorIs(t, m.Reconfigure(context.Background(), srv.Config()), session.ErrClosed)

	for range sub.C {
	}
}
