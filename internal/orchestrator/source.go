package orchestrator

import "epg-encoder/internal/epgstation"

// Selection decides which recorded programs become items.
type Selection struct {
	// FileType is the required type of the single video file (e.g. "ts").
	FileType string
	// RecordedID, when set, selects only that record and skips the file
	// checks except that it must have at least one video file.
	RecordedID *epgstation.RecordedID
}

// EligibleItems turns records into items, keeping their order. A record is
// eligible when it has exactly one video file and that file has FileType.
func EligibleItems(records []epgstation.Record, sel Selection) []Item {
	var items []Item
	for _, rec := range records {
		if sel.RecordedID != nil {
			if rec.ID != *sel.RecordedID || len(rec.VideoFiles) == 0 {
				continue
			}
		} else if len(rec.VideoFiles) != 1 || rec.VideoFiles[0].Type != sel.FileType {
			continue
		}

		vf := rec.VideoFiles[0]
		items = append(items, Item{
			RecordedID:  rec.ID,
			VideoFileID: vf.ID,
			FileName:    vf.Filename,
			Name:        rec.Name,
		})
	}
	return items
}
