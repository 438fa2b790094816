package monitor

import "time"

// Detection thresholds. EAR (eye aspect ratio) drops as the eyes close;
// mouth openness is measured in the same unit as the landmark geometry.
const (
	EyeARThreshold    = 0.3
	EyeARConsecFrames = 30
	YawnThreshold     = 20.0
)

// EventKind labels the fatigue signal that tripped.
type EventKind string

const (
	EventEyeClosure EventKind = "eye_closure"
	EventYawn       EventKind = "yawn"
)

// Sample is one frame worth of derived facial signals.
type Sample struct {
	EAR           float64
	MouthOpenness float64
	Timestamp     time.Time
}

// FatigueEvent is emitted once per debounce trip and consumed immediately
// by the alert dispatcher.
type FatigueEvent struct {
	DriverID  string
	Kind      EventKind
	Timestamp time.Time
}

// detectorState is the per-driver debouncer. It is owned exclusively by the
// driver's monitor goroutine and never shared. The eye channel counts
// consecutive closed frames and trips once per continuous run; the yawn
// channel is edge-triggered. Both channels arm and reset independently, so
// a single sample can emit zero, one, or two events.
type detectorState struct {
	closedFrames int
	eyeAlarm     bool
	yawnAlarm    bool
}

// process advances the state machine by one sample and returns the events
// it tripped, if any.
func (d *detectorState) process(driverID string, s Sample) []FatigueEvent {
	var events []FatigueEvent

	if s.EAR < EyeARThreshold {
		d.closedFrames++
		if d.closedFrames >= EyeARConsecFrames && !d.eyeAlarm {
			d.eyeAlarm = true
			events = append(events, FatigueEvent{
				DriverID:  driverID,
				Kind:      EventEyeClosure,
				Timestamp: s.Timestamp,
			})
		}
	} else {
		d.closedFrames = 0
		d.eyeAlarm = false
	}

	if s.MouthOpenness > YawnThreshold {
		if !d.yawnAlarm {
			d.yawnAlarm = true
			events = append(events, FatigueEvent{
				DriverID:  driverID,
				Kind:      EventYawn,
				Timestamp: s.Timestamp,
			})
		}
	} else {
		d.yawnAlarm = false
	}

	return events
}
