package chat

import (
	"context"

	"bridgeme/internal/call"
	"bridgeme/internal/logger"
)

func (s *Service) controller(userID, peerID string) *call.Controller {
	k := pairKey(userID, peerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calls[k]; ok {
		return c
	}
	c := call.NewController(call.Options{
		ParticipantID: peerID,
		Devices:       s.opts.Devices,
		Recorder:      s.opts.Recorder,
		Store:         s.opts.Media,
		Tick:          s.opts.CallTick,
		OnEnded: func(ev call.EndedEvent) {
			s.onCallEnded(userID, peerID, ev)
		},
	})
	s.calls[k] = c
	return c
}

// onCallEnded archives the call log and posts the summary line.
func (s *Service) onCallEnded(userID, peerID string, ev call.EndedEvent) {
	ctx := context.Background()
	if err := s.opts.Archive.SaveCallLog(ctx, userID, ev.Log); err != nil {
		logger.Error().Err(err).Str("call", ev.Log.ID).Msg("❌ DB Error: archive call log")
	}
	c, err := s.Open(ctx, userID, peerID)
	if err != nil {
		logger.Error().Err(err).Msg("call ended without a conversation")
		return
	}
	m := c.AppendSystem(ev.Summary, KindCallLog, ev.Log.Medium)
	s.appended(ctx, userID, peerID, m)
	log := ev.Log
	s.publish(ctx, userID, Event{Type: EventCallEnded, PeerID: peerID, Call: &log})
}

func (s *Service) StartCall(ctx context.Context, userID, peerID string, medium call.Medium) (call.Status, error) {
	if _, err := s.Open(ctx, userID, peerID); err != nil {
		return call.Status{}, err
	}
	c := s.controller(userID, peerID)
	if err := c.Start(ctx, medium, call.Outgoing); err != nil {
		return call.Status{}, toAppErr(err)
	}
	return c.Status(), nil
}

func (s *Service) CallStatus(userID, peerID string) call.Status {
	return s.controller(userID, peerID).Status()
}

// CallControl is a partial update of the in-call toggles.
type CallControl struct {
	Muted     *bool `json:"muted,omitempty"`
	CameraOff *bool `json:"cameraOff,omitempty"`
}

func (s *Service) ControlCall(userID, peerID string, ctl CallControl) (call.Status, error) {
	c := s.controller(userID, peerID)
	if ctl.Muted != nil {
		if err := c.SetMuted(*ctl.Muted); err != nil {
			return call.Status{}, toAppErr(err)
		}
	}
	if ctl.CameraOff != nil {
		if err := c.SetCameraOff(*ctl.CameraOff); err != nil {
			return call.Status{}, toAppErr(err)
		}
	}
	return c.Status(), nil
}

func (s *Service) StartRecording(userID, peerID string) (call.Status, error) {
	c := s.controller(userID, peerID)
	if err := c.StartRecording(); err != nil {
		return call.Status{}, toAppErr(err)
	}
	return c.Status(), nil
}

func (s *Service) StopRecording(ctx context.Context, userID, peerID string) (string, error) {
	url, err := s.controller(userID, peerID).StopRecording(ctx)
	return url, toAppErr(err)
}

func (s *Service) EndCall(ctx context.Context, userID, peerID string, outcome call.Outcome) (call.EndedEvent, error) {
	ev, err := s.controller(userID, peerID).End(ctx, outcome)
	return ev, toAppErr(err)
}

func (s *Service) CallHistory(ctx context.Context, userID, peerID string) ([]CallLog, error) {
	return s.opts.Archive.CallLogs(ctx, userID, peerID)
}
