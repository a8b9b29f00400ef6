package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/pushchannel"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/rs/zerolog"
)

// DefaultVolumeStep is the increment used by VolumeUp and VolumeDown.
const DefaultVolumeStep = 5

// ErrTornDown is returned by operations on a reconciler that was torn down.
var ErrTornDown = errors.New("reconciler: torn down")

// Commander is the request/response surface the reconciler drives.
// *commandclient.Client implements it.
type Commander interface {
	ListStations(ctx context.Context) ([]radio.Station, error)
	GetStation(ctx context.Context, id string) (radio.Station, error)
	CreateStation(ctx context.Context, draft radio.Station) (radio.Station, error)
	UpdateStation(ctx context.Context, id string, draft radio.Station) (radio.Station, error)
	DeleteStation(ctx context.Context, id string) error
	GetStatus(ctx context.Context) (radio.PlaybackStatus, error)
	Play(ctx context.Context, id string) error
	Stop(ctx context.Context) error
	GetVolume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, level int) (int, error)
}

// Phase is the lifecycle position of a Reconciler.
type Phase int32

const (
	Uninitialized Phase = iota
	Priming
	Live
	TornDown
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Priming:
		return "priming"
	case Live:
		return "live"
	case TornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// CatalogPolicy decides how successful catalog edits reach the local list.
//
// With PushConfirmed the list is left alone and changes only when the device
// pushes the new catalog. With Optimistic the station returned by the device
// is applied right away; a create whose id is already present replaces the
// existing entry. In both cases the next catalog push replaces the whole
// list, so an edit is never applied twice.
type CatalogPolicy int

const (
	PushConfirmed CatalogPolicy = iota
	Optimistic
)

func (p CatalogPolicy) String() string {
	switch p {
	case PushConfirmed:
		return "push_confirmed"
	case Optimistic:
		return "optimistic"
	default:
		return fmt.Sprintf("catalog_policy(%d)", int(p))
	}
}

// ParseCatalogPolicy parses a policy name. The empty string means
// PushConfirmed.
func ParseCatalogPolicy(s string) (CatalogPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "push_confirmed", "push":
		return PushConfirmed, nil
	case "optimistic":
		return Optimistic, nil
	default:
		return PushConfirmed, fmt.Errorf("reconciler: unknown catalog policy %q", s)
	}
}

// Options configures a Reconciler.
type Options struct {
	ID            string        // Session id, attached to every log line.
	VolumeStep    int           // Step for VolumeUp/VolumeDown (default: 5).
	CatalogPolicy CatalogPolicy // Default: PushConfirmed.
	Logger        *zerolog.Logger
}

// Reconciler keeps one session's view of the device consistent with pulls,
// pushes and command results. All state mutation and publication happen
// under a single mutex.
type Reconciler struct {
	client Commander
	feeds  *Feeds
	id     string
	step   int
	policy CatalogPolicy
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	phase    Phase
	stations []radio.Station
	status   radio.PlaybackStatus
	volume   int
	push     io.Closer
}

// New creates an Uninitialized reconciler publishing to feeds.
func New(client Commander, feeds *Feeds, opts Options) *Reconciler {
	step := opts.VolumeStep
	if step <= 0 {
		step = DefaultVolumeStep
	}

	ctx, cancel := context.WithCancel(context.Background())

	log := logger.Component(logger.OrNop(opts.Logger), "reconciler")
	if opts.ID != "" {
		log = log.With().Str("session", opts.ID).Logger()
	}

	return &Reconciler{
		client:   client,
		feeds:    feeds,
		id:       opts.ID,
		step:     step,
		policy:   opts.CatalogPolicy,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		stations: []radio.Station{},
	}
}

// ID returns the session id given in Options.
func (r *Reconciler) ID() string { return r.id }

// Phase returns the current lifecycle phase.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.phase
}

// Stations returns a copy of the local catalog.
func (r *Reconciler) Stations() []radio.Station {
	r.mu.Lock()
	defer r.mu.Unlock()

	return radio.CloneStations(r.stations)
}

// Status returns the local playback status.
func (r *Reconciler) Status() radio.PlaybackStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status.Clone()
}

// Volume returns the local volume level.
func (r *Reconciler) Volume() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.volume
}

// bind derives a context that is also cancelled by Teardown.
func (r *Reconciler) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)

	return ctx, func() {
		stop()
		cancel()
	}
}

func (r *Reconciler) alive() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == TornDown {
		return ErrTornDown
	}
	return nil
}

// commit runs fn under the state lock unless the reconciler is torn down.
func (r *Reconciler) commit(what string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == TornDown {
		r.log.Debug().Str("update", what).Msg("discarding result after teardown")
		return
	}

	fn()
}

// The set* helpers require r.mu.

func (r *Reconciler) setStations(list []radio.Station) {
	if list == nil {
		list = []radio.Station{}
	}
	r.stations = radio.CloneStations(list)
	r.feeds.Stations.Set(radio.CloneStations(list))
}

func (r *Reconciler) setStatus(st radio.PlaybackStatus) {
	r.status = st.Clone()
	r.feeds.Status.Set(st.Clone())
}

func (r *Reconciler) setVolume(v int) {
	r.volume = v
	r.feeds.Volume.Set(v)
}

// Prime performs the initial pull of all three fields in parallel. Each
// successful pull replaces and publishes its field; a failed one leaves the
// field untouched. Failures are joined into the returned error. There are no
// retries.
func (r *Reconciler) Prime(ctx context.Context) error {
	r.mu.Lock()
	switch r.phase {
	case Uninitialized:
		r.phase = Priming
	case TornDown:
		r.mu.Unlock()
		return ErrTornDown
	default:
		p := r.phase
		r.mu.Unlock()
		return fmt.Errorf("reconciler: prime in phase %s", p)
	}
	r.mu.Unlock()

	r.log.Debug().Msg("priming")

	return r.pull(ctx)
}

// Refresh pulls all three fields again, the same way Prime does.
func (r *Reconciler) Refresh(ctx context.Context) error {
	if err := r.alive(); err != nil {
		return err
	}
	return r.pull(ctx)
}

func (r *Reconciler) pull(ctx context.Context) error {
	ctx, done := r.bind(ctx)
	defer done()

	var (
		wg                   sync.WaitGroup
		errStations, errStat error
		errVolume            error
	)

	wg.Go(func() {
		list, err := r.client.ListStations(ctx)
		if err != nil {
			errStations = err
			return
		}
		r.commit("stations", func() { r.setStations(list) })
	})

	wg.Go(func() {
		st, err := r.client.GetStatus(ctx)
		if err != nil {
			errStat = err
			return
		}
		r.commit("status", func() { r.setStatus(st) })
	})

	wg.Go(func() {
		v, err := r.client.GetVolume(ctx)
		if err != nil {
			errVolume = err
			return
		}
		r.commit("volume", func() { r.setVolume(v) })
	})

	wg.Wait()

	err := errors.Join(errStations, errStat, errVolume)
	if err != nil {
		r.log.Warn().Err(err).Msg("pull failed")
	}

	return err
}

// Attach hands the push channel to the reconciler and makes it Live. The
// channel is closed by Teardown. Attaching to a torn-down reconciler closes
// ch and returns ErrTornDown.
func (r *Reconciler) Attach(ch io.Closer) error {
	r.mu.Lock()

	if r.phase == TornDown {
		r.mu.Unlock()
		_ = ch.Close()
		return ErrTornDown
	}

	if r.push != nil {
		r.mu.Unlock()
		return errors.New("reconciler: push channel already attached")
	}

	r.push = ch
	r.phase = Live
	r.mu.Unlock()

	r.log.Debug().Msg("live")

	return nil
}

// HandleEvent applies a push event. The named field is overwritten with the
// event's value whatever it held before. Events after Teardown are dropped.
func (r *Reconciler) HandleEvent(ev pushchannel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == TornDown {
		return
	}

	switch ev.Kind {
	case pushchannel.KindStations:
		r.setStations(ev.Stations)
	case pushchannel.KindStatus:
		r.setStatus(ev.Status)
	case pushchannel.KindVolume:
		r.setVolume(ev.Volume)
	default:
		r.log.Warn().Str("kind", string(ev.Kind)).Msg("ignoring unknown event")
	}
}

// GetStation fetches a fresh copy of one station. Local state is unchanged.
func (r *Reconciler) GetStation(ctx context.Context, id string) (radio.Station, error) {
	if err := r.alive(); err != nil {
		return radio.Station{}, err
	}

	ctx, done := r.bind(ctx)
	defer done()

	return r.client.GetStation(ctx, id)
}

// CreateStation creates draft on the device.
func (r *Reconciler) CreateStation(ctx context.Context, draft radio.Station) (radio.Station, error) {
	if err := r.alive(); err != nil {
		return radio.Station{}, err
	}

	ctx, done := r.bind(ctx)
	defer done()

	st, err := r.client.CreateStation(ctx, draft)
	if err != nil {
		return radio.Station{}, err
	}

	if r.policy == Optimistic {
		r.commit("create station", func() { r.setStations(upsert(r.stations, st)) })
	}

	return st, nil
}

// UpdateStation replaces the station with the given id on the device.
func (r *Reconciler) UpdateStation(ctx context.Context, id string, draft radio.Station) (radio.Station, error) {
	if err := r.alive(); err != nil {
		return radio.Station{}, err
	}

	ctx, done := r.bind(ctx)
	defer done()

	st, err := r.client.UpdateStation(ctx, id, draft)
	if err != nil {
		return radio.Station{}, err
	}

	if r.policy == Optimistic {
		r.commit("update station", func() { r.setStations(upsert(r.stations, st)) })
	}

	return st, nil
}

// DeleteStation removes the station with the given id on the device.
func (r *Reconciler) DeleteStation(ctx context.Context, id string) error {
	if err := r.alive(); err != nil {
		return err
	}

	ctx, done := r.bind(ctx)
	defer done()

	if err := r.client.DeleteStation(ctx, id); err != nil {
		return err
	}

	if r.policy == Optimistic {
		r.commit("delete station", func() { r.setStations(remove(r.stations, id)) })
	}

	return nil
}

// Play asks the device to play a station. The status changes only when the
// device pushes it.
func (r *Reconciler) Play(ctx context.Context, id string) error {
	if err := r.alive(); err != nil {
		return err
	}

	ctx, done := r.bind(ctx)
	defer done()

	return r.client.Play(ctx, id)
}

// Stop asks the device to stop. The status changes only when the device
// pushes it.
func (r *Reconciler) Stop(ctx context.Context) error {
	if err := r.alive(); err != nil {
		return err
	}

	ctx, done := r.bind(ctx)
	defer done()

	return r.client.Stop(ctx)
}

// RefreshStatus pulls the playback status and replaces the local one.
func (r *Reconciler) RefreshStatus(ctx context.Context) (radio.PlaybackStatus, error) {
	if err := r.alive(); err != nil {
		return radio.PlaybackStatus{}, err
	}

	ctx, done := r.bind(ctx)
	defer done()

	st, err := r.client.GetStatus(ctx)
	if err != nil {
		return radio.PlaybackStatus{}, err
	}

	r.commit("status", func() { r.setStatus(st) })

	return st, nil
}

// SetVolume sends level to the device and applies the level it confirmed.
// Out-of-range levels are not clamped here; the device decides.
func (r *Reconciler) SetVolume(ctx context.Context, level int) (int, error) {
	if err := r.alive(); err != nil {
		return 0, err
	}

	ctx, done := r.bind(ctx)
	defer done()

	v, err := r.client.SetVolume(ctx, level)
	if err != nil {
		return 0, err
	}

	r.commit("volume", func() { r.setVolume(v) })

	return v, nil
}

// AdjustVolume moves the volume by delta from the last known level, clamped
// to the valid range. Concurrent adjustments are not serialized: each reads
// the local level when it starts.
func (r *Reconciler) AdjustVolume(ctx context.Context, delta int) (int, error) {
	r.mu.Lock()
	if r.phase == TornDown {
		r.mu.Unlock()
		return 0, ErrTornDown
	}
	target := radio.ClampVolume(radio.ClampVolume(r.volume) + delta)
	r.mu.Unlock()

	return r.SetVolume(ctx, target)
}

// VolumeUp raises the volume by one step.
func (r *Reconciler) VolumeUp(ctx context.Context) (int, error) {
	return r.AdjustVolume(ctx, r.step)
}

// VolumeDown lowers the volume by one step.
func (r *Reconciler) VolumeDown(ctx context.Context) (int, error) {
	return r.AdjustVolume(ctx, -r.step)
}

// Teardown stops the reconciler: in-flight pulls and commands are cancelled,
// the push channel is closed and nothing reaches the feeds any more. The
// feeds themselves stay open. Calling Teardown again is a no-op.
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	if r.phase == TornDown {
		r.mu.Unlock()
		return
	}
	r.phase = TornDown
	push := r.push
	r.push = nil
	r.mu.Unlock()

	r.cancel()

	// The push reader may be waiting on r.mu inside HandleEvent, so the channel
	// is closed without holding it.
	if push != nil {
		if err := push.Close(); err != nil {
			r.log.Warn().Err(err).Msg("closing push channel")
		}
	}

	r.log.Debug().Msg("torn down")
}

func upsert(list []radio.Station, st radio.Station) []radio.Station {
	out := radio.CloneStations(list)
	if i := radio.IndexStation(out, st.ID); i >= 0 {
		out[i] = st
		return out
	}
	return append(out, st)
}

func remove(list []radio.Station, id string) []radio.Station {
	out := make([]radio.Station, 0, len(list))
	for _, s := range list {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
