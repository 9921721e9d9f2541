package call

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"bridgeme/internal/logger"
	"bridgeme/internal/media"
	"bridgeme/internal/metrics"

	"github.com/google/uuid"
)

type Options struct {
	ParticipantID string
	Devices       Devices
	Recorder      Recorder
	Store         media.ObjectStore
	// OnEnded receives the single EndedEvent of each call.
	OnEnded func(EndedEvent)
	Tick    time.Duration
}

// Status is a point in time view of the controller.
type Status struct {
	State        State     `json:"-"`
	StateName    string    `json:"state"`
	Medium       Medium    `json:"type,omitempty"`
	Direction    Direction `json:"direction,omitempty"`
	Seconds      int       `json:"seconds"`
	Duration     string    `json:"duration"`
	Muted        bool      `json:"muted"`
	CameraOff    bool      `json:"cameraOff"`
	Recording    bool      `json:"recording"`
	Unavailable  bool      `json:"unavailable"`
	RecordingURL string    `json:"recordingUrl,omitempty"`
}

// Controller owns at most one active call. Devices acquired by Start are
// released on every path out of the Active state.
type Controller struct {
	opts Options

	mu           sync.Mutex
	state        State
	medium       Medium
	direction    Direction
	startedAt    time.Time
	stream       Stream
	unavailable  bool
	muted        bool
	cameraOff    bool
	seconds      int
	rec          RecordingSession
	recordingURL string
	stop         chan struct{}
	done         chan struct{}
	// starting is set while Start waits on the devices outside mu.
	starting bool
	// gen counts calls so late results of an earlier call are dropped.
	gen uint64

	now   func() time.Time
	newID func() string
}

func NewController(opts Options) *Controller {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	return &Controller{
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (c *Controller) Start(ctx context.Context, medium Medium, dir Direction) error {
	if !medium.Valid() {
		return ErrInvalidMedium
	}
	if dir == "" {
		dir = Outgoing
	}

	c.mu.Lock()
	if c.state == Active || c.starting {
		c.mu.Unlock()
		return ErrCallActive
	}
	c.starting = true
	c.mu.Unlock()

	// The permission prompt can take a while; Status stays readable meanwhile.
	stream, err := c.opts.Devices.Acquire(ctx, Constraints{Audio: true, Video: medium == Video})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The call still goes ahead with a placeholder instead of local media.
		logger.Warn().Err(err).Str("participant", c.opts.ParticipantID).Str("type", string(medium)).Msg("Media devices unavailable")
		stream = nil
	}
	if c.state == Active {
		if stream != nil {
			stream.Release()
		}
		return ErrCallActive
	}

	c.gen++
	c.state = Active
	c.medium = medium
	c.direction = dir
	c.startedAt = c.now()
	c.stream = stream
	c.unavailable = stream == nil
	c.muted = false
	c.cameraOff = stream == nil && medium == Video
	c.seconds = 0
	c.rec = nil
	c.recordingURL = ""
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.tick(c.stop, c.done)

	logger.Info().Str("participant", c.opts.ParticipantID).Str("type", string(medium)).Msg("📞 Call started")
	return nil
}

func (c *Controller) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(c.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			c.seconds++
			c.mu.Unlock()
		}
	}
}

func (c *Controller) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return ErrNoActiveCall
	}
	c.muted = muted
	if c.stream != nil {
		c.stream.SetAudioEnabled(!muted)
	}
	return nil
}

func (c *Controller) SetCameraOff(off bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return ErrNoActiveCall
	}
	if c.medium != Video {
		return ErrVideoOnly
	}
	// Without a camera stream the placeholder stays on.
	if c.stream == nil {
		c.cameraOff = true
		return nil
	}
	c.cameraOff = off
	c.stream.SetVideoEnabled(!off)
	return nil
}

func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return ErrNoActiveCall
	}
	if c.medium != Video {
		return ErrVideoOnly
	}
	if c.rec != nil {
		return ErrAlreadyRecording
	}
	if c.stream == nil {
		return fmt.Errorf("cannot record: %w", ErrPermissionDenied)
	}
	rec, err := c.opts.Recorder.Start(c.stream)
	if err != nil {
		return err
	}
	c.rec = rec
	return nil
}

// StopRecording finalizes the recording without ending the call and returns
// the uploaded artifact URL.
func (c *Controller) StopRecording(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return "", ErrNoActiveCall
	}
	rec := c.rec
	c.rec = nil
	gen := c.gen
	c.mu.Unlock()

	if rec == nil {
		return "", ErrNotRecording
	}
	url, err := c.finalize(ctx, rec)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		logger.Warn().Str("participant", c.opts.ParticipantID).Msg("Recording finished after its call was replaced")
		return url, nil
	}
	c.recordingURL = url
	return url, nil
}

func (c *Controller) finalize(ctx context.Context, rec RecordingSession) (string, error) {
	art, err := rec.Stop(ctx)
	if err != nil {
		return "", fmt.Errorf("stop recording: %w", err)
	}
	if c.opts.Store == nil {
		return media.DataURL{MIMEType: art.ContentType, Data: art.Data}.String(), nil
	}
	key := fmt.Sprintf("recordings/%s/%s.webm", c.opts.ParticipantID, c.newID())
	return c.opts.Store.Put(ctx, key, art.ContentType, art.Data)
}

// End stops the active call. Devices are always released; a failed recording
// only drops the recording URL.
func (c *Controller) End(ctx context.Context, outcome Outcome) (EndedEvent, error) {
	if outcome == "" {
		outcome = Completed
	}

	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return EndedEvent{}, ErrNoActiveCall
	}
	c.state = Ended
	close(c.stop)
	done := c.done
	rec := c.rec
	c.rec = nil
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	<-done

	url := ""
	if rec != nil {
		var err error
		if url, err = c.finalize(ctx, rec); err != nil {
			logger.Error().Err(err).Str("participant", c.opts.ParticipantID).Msg("Recording lost")
			url = ""
		}
	}
	if stream != nil {
		stream.Release()
	}

	c.mu.Lock()
	if url != "" {
		c.recordingURL = url
	}
	ev := EndedEvent{
		Seconds: c.seconds,
		Log: Log{
			ID:            c.newID(),
			ParticipantID: c.opts.ParticipantID,
			Timestamp:     c.now(),
			Duration:      FormatDuration(c.seconds),
			Medium:        c.medium,
			Outcome:       outcome,
			Direction:     c.direction,
			RecordingURL:  c.recordingURL,
		},
	}
	c.mu.Unlock()

	ev.Summary = Summary(ev.Log.Medium, ev.Seconds, ev.Log.RecordingURL != "")
	metrics.CallsEnded.WithLabelValues(string(ev.Log.Medium), strconv.FormatBool(ev.Log.RecordingURL != "")).Inc()
	logger.Info().Str("participant", c.opts.ParticipantID).Str("duration", ev.Log.Duration).Msg("📴 Call ended")

	if c.opts.OnEnded != nil {
		c.opts.OnEnded(ev)
	}
	return ev, nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:        c.state,
		StateName:    c.state.String(),
		Medium:       c.medium,
		Direction:    c.direction,
		Seconds:      c.seconds,
		Duration:     FormatDuration(c.seconds),
		Muted:        c.muted,
		CameraOff:    c.cameraOff,
		Recording:    c.rec != nil,
		Unavailable:  c.unavailable,
		RecordingURL: c.recordingURL,
	}
}
