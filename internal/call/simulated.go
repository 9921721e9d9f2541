package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SimulatedDevices hands out in-memory streams. With Deny set every request
// fails as if the user refused permission.
type SimulatedDevices struct {
	Deny bool

	mu      sync.Mutex
	streams []*SimulatedStream
}

func (d *SimulatedDevices) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Deny {
		return nil, ErrPermissionDenied
	}
	s := &SimulatedStream{constraints: c, audio: c.Audio, video: c.Video}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Streams returns every stream handed out so far.
func (d *SimulatedDevices) Streams() []*SimulatedStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*SimulatedStream(nil), d.streams...)
}

type SimulatedStream struct {
	mu          sync.Mutex
	constraints Constraints
	audio       bool
	video       bool
	released    bool
}

func (s *SimulatedStream) SetAudioEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = enabled && s.constraints.Audio
}

func (s *SimulatedStream) SetVideoEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = enabled && s.constraints.Video
}

func (s *SimulatedStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.audio, s.video = false, false
}

func (s *SimulatedStream) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

func (s *SimulatedStream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

func (s *SimulatedStream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

var ErrRecorderFailed = errors.New("recorder failed")

// SimulatedRecorder produces a small fake webm artifact.
type SimulatedRecorder struct {
	FailStop bool
}

func (r SimulatedRecorder) Start(Stream) (RecordingSession, error) {
	return &simulatedSession{started: time.Now(), fail: r.FailStop}, nil
}

type simulatedSession struct {
	started time.Time
	fail    bool
}

func (s *simulatedSession) Stop(ctx context.Context) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if s.fail {
		return Artifact{}, ErrRecorderFailed
	}
	data := fmt.Sprintf("webm:%s", time.Since(s.started).Round(time.Millisecond))
	return Artifact{ContentType: "video/webm", Data: []byte(data)}, nil
}
