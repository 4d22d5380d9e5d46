package orchestrator

import (
	"time"

	"epg-encoder/internal/epgstation"
)

// Item is one recorded program to download, transcode, re-upload and clean up.
type Item struct {
	RecordedID  epgstation.RecordedID  `json:"recorded_id"`
	VideoFileID epgstation.VideoFileID `json:"video_file_id"`
	FileName    string                 `json:"file_name"`
	Name        string                 `json:"name"`
}

// Stage is a unit of work within one item.
type Stage string

const (
	StageDownload  Stage = "download"
	StageTranscode Stage = "transcode"
	StageUpload    Stage = "upload"
	StageCleanup   Stage = "cleanup"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageDownload, StageTranscode, StageUpload, StageCleanup}

// State is the position of an item in the pipeline.
type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateTranscoding State = "transcoding"
	StateUploading   State = "uploading"
	StateCleaningUp  State = "cleaning_up"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

// stateFor maps a stage to the state an item is in while it runs.
func stateFor(s Stage) State {
	switch s {
	case StageDownload:
		return StateDownloading
	case StageTranscode:
		return StateTranscoding
	case StageUpload:
		return StateUploading
	default:
		return StateCleaningUp
	}
}

// next returns the only state reachable from s on success.
func (s State) next() (State, bool) {
	switch s {
	case StatePending:
		return StateDownloading, true
	case StateDownloading:
		return StateTranscoding, true
	case StateTranscoding:
		return StateUploading, true
	case StateUploading:
		return StateCleaningUp, true
	case StateCleaningUp:
		return StateDone, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// ItemStatus is the run-state record kept for each item.
type ItemStatus struct {
	Item       Item      `json:"item"`
	State      State     `json:"state"`
	Stage      Stage     `json:"stage,omitempty"` // stage running, or the one that failed
	Error      string    `json:"error,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
