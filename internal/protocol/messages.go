package protocol

import "time"

// Fragment is one recognized piece of text broadcast on the bus.
type Fragment struct {
	SessionID string    `json:"session_id"`
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState reports recording session transitions.
type SessionState struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	ModelPath string    `json:"model_path,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StateRecording = "recording"
	StateIdle      = "idle"
)

const (
	SubjectTranscriptFragment = "whisperlite.transcript.fragment"
	SubjectSessionState       = "whisperlite.session.state"
)
