// Package call runs a single audio or video call: device acquisition, the
// duration ticker, mute/camera toggles and optional recording.
package call

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Medium string

const (
	Audio Medium = "audio"
	Video Medium = "video"
)

func (m Medium) Valid() bool { return m == Audio || m == Video }

// Title is the capitalized label used in chat lines ("Video Call ended").
func (m Medium) Title() string {
	if m == Video {
		return "Video"
	}
	return "Audio"
}

type Outcome string

const (
	Completed Outcome = "completed"
	Missed    Outcome = "missed"
	Declined  Outcome = "declined"
)

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

type State int

const (
	Idle State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "idle"
	}
}

var (
	ErrCallActive       = errors.New("a call is already in progress")
	ErrNoActiveCall     = errors.New("no active call")
	ErrInvalidMedium    = errors.New("call type must be audio or video")
	ErrPermissionDenied = errors.New("media device permission denied")
	ErrVideoOnly        = errors.New("only available on video calls")
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("not recording")
)

// Log is one entry of the call history.
type Log struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	Timestamp     time.Time `json:"timestamp"`
	Duration      string    `json:"duration"`
	Medium        Medium    `json:"type"`
	Outcome       Outcome   `json:"status"`
	Direction     Direction `json:"direction"`
	RecordingURL  string    `json:"recordingUrl,omitempty"`
}

// EndedEvent is emitted exactly once per call.
type EndedEvent struct {
	Log     Log
	Seconds int
	Summary string
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Summary is the chat line announcing a finished call.
func Summary(m Medium, secs int, recorded bool) string {
	s := fmt.Sprintf("%s Call ended • %s", m.Title(), FormatDuration(secs))
	if recorded {
		s += " • ⏺️ Recorded"
	}
	return s
}

// Constraints selects which tracks to capture.
type Constraints struct {
	Audio bool
	Video bool
}

// Stream is a set of captured tracks.
type Stream interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	// Release stops every track. It must be safe to call more than once.
	Release()
}

type Devices interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Artifact is the encoded output of a recording session.
type Artifact struct {
	ContentType string
	Data        []byte
}

type Recorder interface {
	Start(s Stream) (RecordingSession, error)
}

type RecordingSession interface {
	Stop(ctx context.Context) (Artifact, error)
}
