package epgstation

import "strconv"

type (
	RecordedID  uint64
	VideoFileID uint64
	ChannelID   uint64
	RuleID      uint64
	ProgramID   uint64
	ThumbnailID uint64
)

// VideoFile is one file attached to a recorded program.
type VideoFile struct {
	ID       VideoFileID `json:"id"`
	Name     string      `json:"name"`
	Filename string      `json:"filename"`
	Type     string      `json:"type"`
	Size     int64       `json:"size"`
}

// Record is a recorded program as returned by GET /api/recorded.
type Record struct {
	ID                 RecordedID    `json:"id"`
	ChannelID          ChannelID     `json:"channelId"`
	StartAt            int64         `json:"startAt"`
	EndAt              int64         `json:"endAt"`
	Name               string        `json:"name"`
	IsRecording        bool          `json:"isRecording"`
	IsEncoding         bool          `json:"isEncoding"`
	IsProtected        bool          `json:"isProtected"`
	RuleID             *RuleID       `json:"ruleId,omitempty"`
	ProgramID          ProgramID     `json:"programId"`
	Description        string        `json:"description"`
	Extended           *string       `json:"extended,omitempty"`
	Genre1             int           `json:"genre1"`
	SubGenre1          int           `json:"subGenre1"`
	VideoType          string        `json:"videoType"`
	VideoResolution    string        `json:"videoResolution"`
	VideoStreamContent int           `json:"videoStreamContent"`
	VideoComponentType int           `json:"videoComponentType"`
	AudioSamplingRate  int           `json:"audioSamplingRate"`
	AudioComponentType int           `json:"audioComponentType"`
	Thumbnails         []ThumbnailID `json:"thumbnails"`
	VideoFiles         []VideoFile   `json:"videoFiles"`
}

type recordedResponse struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
}

// VideoFileProperty describes where an uploaded file is filed on the server.
// SubDirectory is only sent when non-empty.
type VideoFileProperty struct {
	FileName            string
	RecordedID          RecordedID
	ParentDirectoryName string
	SubDirectory        string
	ViewName            string
	FileType            string
}

// RecordedQuery holds the filter for GET /api/recorded. Nil fields are left
// out of the request.
type RecordedQuery struct {
	IsHalfWidth bool
	RuleID      *RuleID
	ChannelID   *ChannelID
	IsReverse   *bool
}

type param struct {
	key, value string
}

// parameters returns the query pairs in the order the server documents them.
func (q RecordedQuery) parameters() []param {
	ps := []param{{"isHalfWidth", strconv.FormatBool(q.IsHalfWidth)}}
	if q.RuleID != nil {
		ps = append(ps, param{"ruleId", strconv.FormatUint(uint64(*q.RuleID), 10)})
	}
	if q.ChannelID != nil {
		ps = append(ps, param{"channelId", strconv.FormatUint(uint64(*q.ChannelID), 10)})
	}
	if q.IsReverse != nil {
		ps = append(ps, param{"isReverse", strconv.FormatBool(*q.IsReverse)})
	}
	return ps
}

// TransferProgress is the byte count of a running download or upload.
// CurrentBytes never decreases within one transfer and TotalBytes is fixed.
type TransferProgress struct {
	CurrentBytes uint64
	TotalBytes   uint64
}
