package session

import (
	"errors"
	"time"
)

var ErrInvalidState = errors.New("invalid session state")

type State string

const (
	StateClosed          State = "closed"
	StateOpening         State = "opening"
	StateReady           State = "ready"
	StateSampling        State = "sampling"
	StatePermissionError State = "permission_error"
	StateManualUpload    State = "manual_upload"
)

// DetectorStatus is the load state of the detector as seen by this session.
type DetectorStatus string

const (
	DetectorIdle    DetectorStatus = "idle"
	DetectorLoading DetectorStatus = "loading"
	DetectorReady   DetectorStatus = "ready"
	DetectorFailed  DetectorStatus = "failed"
)

type EventType string

const (
	EventStateChanged EventType = "state"
	EventModelLoading EventType = "model_loading"
	EventModelLoaded  EventType = "model_loaded"
	EventModelError   EventType = "model_error"
	EventTickError    EventType = "tick_error"
	EventCaptured     EventType = "capture"
)

// Reason classifies a PermissionError state for the UI.
type Reason string

const (
	ReasonPermissionDenied  Reason = "permission_denied"
	ReasonDeviceUnavailable Reason = "device_unavailable"
)

type Event struct {
	Type     EventType      `json:"type"`
	State    State          `json:"state"`
	Detector DetectorStatus `json:"detector"`
	Backend  string         `json:"backend,omitempty"`
	Reason   Reason         `json:"reason,omitempty"`
	Error    string         `json:"error,omitempty"`
	Capture  string         `json:"capture,omitempty"`
	At       time.Time      `json:"at"`
}

// Listener receives every session event in order. It is called with the session
// lock held and must neither block nor call back into the Controller.
type Listener interface {
	OnSessionEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnSessionEvent(e Event) { f(e) }
