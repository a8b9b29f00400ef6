// Package mqttbridge mirrors the radio state onto an MQTT broker and accepts
// text commands from it, so home-automation systems can drive the device
// without speaking its protocol.
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/rs/zerolog"
)

// DefaultCommandTimeout bounds a single command issued from the broker.
const DefaultCommandTimeout = 5 * time.Second

// Broker is the part of an MQTT client the bridge uses.
type Broker interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(payload []byte)) error
	Unsubscribe(topic string) error
}

// Controller is the radio surface the bridge drives. *session.Manager
// implements it.
type Controller interface {
	Stations() *feed.Feed[[]radio.Station]
	Status() *feed.Feed[radio.PlaybackStatus]
	Volume() *feed.Feed[int]
	Play(ctx context.Context, id string) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, level int) (int, error)
	VolumeUp(ctx context.Context) (int, error)
	VolumeDown(ctx context.Context) (int, error)
	Refresh(ctx context.Context) error
}

// Snapshot is the retained state document.
type Snapshot struct {
	Stations []radio.Station      `json:"stations"`
	Status   radio.PlaybackStatus `json:"status"`
	Volume   int                  `json:"volume"`
}

// Options configures a Bridge.
type Options struct {
	StateTopic     string
	CommandTopic   string
	CommandTimeout time.Duration // Default: 5s.
	Logger         *zerolog.Logger
}

// Bridge connects a Controller to a Broker.
type Bridge struct {
	ctrl    Controller
	broker  Broker
	opts    Options
	log     zerolog.Logger
	timeout time.Duration
}

// New creates a Bridge. Nothing happens until Run.
func New(ctrl Controller, broker Broker, opts Options) *Bridge {
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	return &Bridge{
		ctrl:    ctrl,
		broker:  broker,
		opts:    opts,
		log:     logger.Component(logger.OrNop(opts.Logger), "mqttbridge"),
		timeout: timeout,
	}
}

// Run publishes the current snapshot, then republishes it on every feed
// change and executes commands arriving on the command topic. It returns
// when ctx is done or the feeds are closed.
func (b *Bridge) Run(ctx context.Context) error {
	stations := b.ctrl.Stations().Subscribe(1)
	defer b.ctrl.Stations().Unsubscribe(stations)
	status := b.ctrl.Status().Subscribe(1)
	defer b.ctrl.Status().Unsubscribe(status)
	volume := b.ctrl.Volume().Subscribe(1)
	defer b.ctrl.Volume().Unsubscribe(volume)

	err := b.broker.Subscribe(b.opts.CommandTopic, func(payload []byte) {
		b.handle(ctx, string(payload))
	})
	if err != nil {
		return fmt.Errorf("mqttbridge: subscribe %s: %w", b.opts.CommandTopic, err)
	}
	defer func() {
		if err := b.broker.Unsubscribe(b.opts.CommandTopic); err != nil {
			b.log.Warn().Err(err).Msg("unsubscribe")
		}
	}()

	b.publish()

	for {
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case _, ok = <-stations.C:
		case _, ok = <-status.C:
		case _, ok = <-volume.C:
		}
		if !ok {
			return nil
		}
		b.publish()
	}
}

// Snapshot reads the current value of every feed.
func (b *Bridge) Snapshot() Snapshot {
	stations, _ := b.ctrl.Stations().Value()
	status, _ := b.ctrl.Status().Value()
	volume, _ := b.ctrl.Volume().Value()

	if stations == nil {
		stations = []radio.Station{}
	}

	return Snapshot{Stations: stations, Status: status, Volume: volume}
}

func (b *Bridge) publish() {
	data, err := json.Marshal(b.Snapshot())
	if err != nil {
		b.log.Error().Err(err).Msg("marshal snapshot")
		return
	}

	if err := b.broker.Publish(b.opts.StateTopic, true, data); err != nil {
		b.log.Error().Err(err).Str("topic", b.opts.StateTopic).Msg("publish snapshot")
	}
}

func (b *Bridge) handle(ctx context.Context, text string) {
	cmd, err := ParseCommand(text)
	if err != nil {
		b.log.Warn().Err(err).Str("payload", text).Msg("rejecting command")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.Execute(ctx, cmd); err != nil {
		b.log.Error().Err(err).Stringer("command", cmd).Msg("command failed")
		return
	}

	b.log.Debug().Stringer("command", cmd).Msg("command done")
}

// Execute runs cmd against the controller.
func (b *Bridge) Execute(ctx context.Context, cmd Command) error {
	var err error

	switch cmd.Op {
	case OpPlay:
		err = b.ctrl.Play(ctx, cmd.Station)
	case OpStop:
		err = b.ctrl.Stop(ctx)
	case OpVolume:
		_, err = b.ctrl.SetVolume(ctx, cmd.Level)
	case OpVolumeUp:
		_, err = b.ctrl.VolumeUp(ctx)
	case OpVolumeDown:
		_, err = b.ctrl.VolumeDown(ctx)
	case OpRefresh:
		err = b.ctrl.Refresh(ctx)
	default:
		err = fmt.Errorf("mqttbridge: unsupported op %q", cmd.Op)
	}

	return err
}
