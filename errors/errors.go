package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrConnectionNotFound = fmt.Errorf("connection not found")
	ErrRoomNotFound       = fmt.Errorf("room not found")
	ErrNotInRoom          = fmt.Errorf("connection has not joined a room")
	ErrInvalidRoomID      = fmt.Errorf("invalid room id")
	ErrInvalidFilename    = fmt.Errorf("invalid filename")
	ErrFileNotFound       = fmt.Errorf("file not found")
	ErrUnknownEvent       = fmt.Errorf("unknown event")
	ErrSinkFull           = fmt.Errorf("sink buffer full")
	ErrSinkClosed         = fmt.Errorf("sink closed")
	ErrInvalidFrame       = fmt.Errorf("invalid frame")
	ErrRateLimited        = fmt.Errorf("too many events, slow down")

	ErrUnsupportedLanguage = fmt.Errorf("unsupported language")
	ErrCompilationFailed   = fmt.Errorf("compilation failed")
	ErrExecutionFailed     = fmt.Errorf("execution failed")
	ErrExecutionTimeout    = fmt.Errorf("execution timed out")
	ErrTooManyExecutions   = fmt.Errorf("too many executions in progress for this room")
	ErrArtifactNotFound    = fmt.Errorf("compiled artifact not found")
)
