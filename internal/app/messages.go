package app

import (
	"time"

	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/db"
)

// RecordsLoadedMsg carries the record list, newest first.
type RecordsLoadedMsg struct {
	Records []db.Summary
	Err     error
}

// RecordLoadedMsg carries one record and its decoded buffer. Buffer is nil
// when the payload could not be decoded; Record is still set then.
type RecordLoadedMsg struct {
	Record db.Record
	Buffer *capture.Buffer
	Err    error
}

// RecordDeletedMsg is sent after a delete attempt.
type RecordDeletedMsg struct {
	ID    int64
	Found bool
	Err   error
}

// RecordUpdatedMsg is sent after title/notes were written back.
type RecordUpdatedMsg struct {
	ID  int64
	Err error
}

// SessionArmedMsg is sent once the source is subscribed and the countdown
// has started.
type SessionArmedMsg struct {
	Err error
}

// SessionStoppedMsg carries the finalized buffer after stop or interrupt.
type SessionStoppedMsg struct {
	Buffer *capture.Buffer
	Err    error
}

// SessionSavedMsg is sent after the save form was written.
type SessionSavedMsg struct {
	ID  int64
	Err error
}

// ExportedMsg lists the files written for a record.
type ExportedMsg struct {
	Files []string
	Err   error
}

// LiveStartedMsg is sent once the live monitor has subscribed.
type LiveStartedMsg struct {
	Monitor *capture.Monitor
	Err     error
}

// PrefsSavedMsg is sent after sensor preferences were written.
type PrefsSavedMsg struct {
	Err error
}

// TickMsg refreshes the countdown and elapsed time on the record screen
// and the live readings.
type TickMsg time.Time

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
