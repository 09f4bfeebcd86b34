package session

import (
	"errors"
	"fmt"
)

var (
	ErrClosed   = errors.New("session closed")
	ErrBusy     = errors.New("session is busy")
	ErrNoAI     = errors.New("auto-fill is not configured")
	ErrNotFound = errors.New("session not found")
)

// Phase is the render lifecycle of a session.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseSchemaLoaded
	PhaseRendered
	PhaseEditing
	PhaseSubmitting
	PhaseDone
	PhaseError
)

var phaseNames = [...]string{
	PhaseUninitialized: "uninitialized",
	PhaseSchemaLoaded:  "schema-loaded",
	PhaseRendered:      "rendered",
	PhaseEditing:       "editing",
	PhaseSubmitting:    "submitting",
	PhaseDone:          "done",
	PhaseError:         "error",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Mode says whether submit creates a row or updates the one found for the URL.
type Mode int

const (
	ModeChecking Mode = iota
	ModeNew
	ModeExisting
)

var modeNames = [...]string{
	ModeChecking: "checking",
	ModeNew:      "new",
	ModeExisting: "existing",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// SubmitLabel is the verb the shell shows on the save action.
func (m Mode) SubmitLabel() string {
	if m == ModeExisting {
		return "Update entry"
	}
	return "Save to Notion"
}

// Activity is the long-running operation in flight, if any. Action
// controls are disabled while it is not idle.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityAIFilling
	ActivitySaving
)

var activityNames = [...]string{
	ActivityIdle:      "idle",
	ActivityAIFilling: "ai-filling",
	ActivitySaving:    "saving",
}

func (a Activity) String() string {
	if a >= 0 && int(a) < len(activityNames) {
		return activityNames[a]
	}
	return fmt.Sprintf("Activity(%d)", int(a))
}

func (a Activity) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
