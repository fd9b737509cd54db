package domain

import "time"

// EditProposal is consumed by arbitration and never stored on its own.
type EditProposal struct {
	Room       RoomID
	Language   Language
	Code       string
	Proposer   ConnectionID
	ReceivedAt time.Time
}

type ExecutionRequest struct {
	Room        RoomID
	Language    Language
	Code        string
	RequestedBy ConnectionID
}

// Stage is the last pipeline step an execution reached.
type Stage int

const (
	StageReceived Stage = iota
	StageWritten
	StageCompiled
	StageRun
	StageDelivered
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageWritten:
		return "written"
	case StageCompiled:
		return "compiled"
	case StageRun:
		return "run"
	case StageDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// ExecutionResult carries everything that ends up in a codeOutput event.
// Err is nil only when every step of the pipeline succeeded.
type ExecutionResult struct {
	Request  ExecutionRequest
	Stage    Stage
	Err      error
	Stdout   string
	Stderr   string
	Duration time.Duration
}

type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mimeType"`
	ModTime  time.Time `json:"modTime"`
}
