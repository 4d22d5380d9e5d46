package orchestrator

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"epg-encoder/internal/epgstation"
	"epg-encoder/internal/ffmpeg"
	"epg-encoder/internal/platform/metrics"
	"epg-encoder/internal/progress"

	"github.com/go-chi/chi/v5"
)

type update struct {
	current, total uint64
}

// recordingView keeps every call, per stage.
type recordingView struct {
	mu       sync.Mutex
	begun    []Stage
	finished []Stage
	updates  map[Stage][]update
}

func newRecordingView() *recordingView {
	return &recordingView{updates: make(map[Stage][]update)}
}

func (v *recordingView) Begin(_ Item, stage Stage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.begun = append(v.begun, stage)
}

func (v *recordingView) Update(stage Stage, current, total uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates[stage] = append(v.updates[stage], update{current, total})
}

func (v *recordingView) Finish(_ Item, stage Stage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finished = append(v.finished, stage)
}

func (v *recordingView) last(stage Stage) (update, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	u := v.updates[stage]
	if len(u) == 0 {
		return update{}, false
	}
	return u[len(u)-1], true
}

// fakeTranscoder writes a small output file and reports media time.
type fakeTranscoder struct {
	total uint64
	err   error
	calls []string
}

func (f *fakeTranscoder) Transcode(_ context.Context, src, dst string, sink progress.Sink[ffmpeg.Progress]) error {
	f.calls = append(f.calls, src)
	sink.TrySend(ffmpeg.Progress{CurrentSecs: 0, TotalSecs: f.total})
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	for s := uint64(600); s <= f.total; s += 600 {
		sink.TrySend(ffmpeg.Progress{CurrentSecs: s, TotalSecs: f.total})
	}
	sink.TrySend(ffmpeg.Progress{CurrentSecs: f.total, TotalSecs: f.total})
	return os.WriteFile(dst, []byte("encoded"), 0o644)
}

// fakeEPGStation serves one video file and records uploads.
type fakeEPGStation struct {
	mu        sync.Mutex
	videos    map[string][]byte
	downloads []string
	uploads   []map[string]string
	sizes     []int
}

func (f *fakeEPGStation) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/videos/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		f.mu.Lock()
		f.downloads = append(f.downloads, id)
		data, ok := f.videos[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	})
	r.Post("/api/videos/upload", func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fields := make(map[string]string)
		size := 0
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(p)
			if p.FormName() == "file" {
				fields["filename"] = p.FileName()
				size = len(b)
				continue
			}
			fields[p.FormName()] = string(b)
		}
		f.mu.Lock()
		f.uploads = append(f.uploads, fields)
		f.sizes = append(f.sizes, size)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func newTestService(t *testing.T, station *fakeEPGStation, tc Transcoder, view ProgressView) (*Service, string) {
	t.Helper()
	srv := httptest.NewServer(station.router())
	t.Cleanup(srv.Close)

	client, err := epgstation.NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	svc := NewService(client, tc, NewInMemoryRepository(), Options{
		WorkDir: dir,
		Upload: UploadTarget{
			ParentDirectoryName: "recorded",
			ViewName:            "AV1",
			FileType:            "encoded",
		},
		View:    view,
		Metrics: metrics.New(),
	})
	return svc, dir
}

func TestService_Run_end_to_end(t *testing.T) {
	const size = 5*32*1024 + 77
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	station := &fakeEPGStation{videos: map[string][]byte{"900": data}}
	view := newRecordingView()
	svc, dir := newTestService(t, station, &fakeTranscoder{total: 3600}, view)

	item := Item{RecordedID: 164, VideoFileID: 900, FileName: "rec164.ts", Name: "News"}
	if err := svc.Run(context.Background(), []Item{item}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if u, ok := view.last(StageDownload); !ok || u.current != size || u.total != size {
		t.Errorf("final download progress = %+v (ok=%v), want %d/%d", u, ok, size, size)
	}
	if u, ok := view.last(StageTranscode); !ok || u != (update{3600, 3600}) {
		t.Errorf("final transcode progress = %+v (ok=%v), want 3600/3600", u, ok)
	}
	for stage, ups := range view.updates {
		for i := 1; i < len(ups); i++ {
			if ups[i].current < ups[i-1].current {
				t.Errorf("%s progress went backwards: %v", stage, ups)
			}
		}
	}

	if len(station.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(station.uploads))
	}
	up := station.uploads[0]
	if up["recordedId"] != "164" || up["filename"] != "rec164.mp4" || up["viewName"] != "AV1" {
		t.Errorf("unexpected upload fields: %v", up)
	}
	if station.sizes[0] != len("encoded") {
		t.Errorf("uploaded %d bytes, want %d", station.sizes[0], len("encoded"))
	}

	for _, name := range []string{"rec164.ts", "rec164.mp4"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should be removed, stat err = %v", name, err)
		}
	}

	st, _ := svc.Repository().Get(164)
	if st.State != StateDone {
		t.Errorf("state = %s, want done", st.State)
	}
	if len(view.begun) != 3 || len(view.finished) != 3 {
		t.Errorf("begun=%v finished=%v", view.begun, view.finished)
	}
}

func TestService_Run_transcode_failure_aborts_run(t *testing.T) {
	station := &fakeEPGStation{videos: map[string][]byte{
		"900": []byte("first"),
		"901": []byte("second"),
	}}
	exit := errors.New("ffmpeg exited with status 1")
	tc := &fakeTranscoder{total: 3600, err: exit}
	svc, dir := newTestService(t, station, tc, nil)

	items := []Item{
		{RecordedID: 164, VideoFileID: 900, FileName: "rec164.ts"},
		{RecordedID: 165, VideoFileID: 901, FileName: "rec165.ts"},
	}
	err := svc.Run(context.Background(), items)

	var se *StageError
	if !errors.As(err, &se) || se.RecordedID != 164 || se.Stage != StageTranscode {
		t.Fatalf("expected transcode StageError for 164, got %v", err)
	}
	if !errors.Is(err, exit) {
		t.Errorf("cause not wrapped: %v", err)
	}

	if len(station.uploads) != 0 {
		t.Errorf("upload attempted after failed transcode")
	}
	if len(station.downloads) != 1 || station.downloads[0] != "900" {
		t.Errorf("later items must not be processed, downloads = %v", station.downloads)
	}
	if _, err := os.Stat(filepath.Join(dir, "rec164.ts")); err != nil {
		t.Errorf("downloaded file should be left in place: %v", err)
	}

	first, _ := svc.Repository().Get(164)
	if first.State != StateAborted || first.Stage != StageTranscode || first.Error == "" {
		t.Errorf("first item status = %+v", first)
	}
	second, _ := svc.Repository().Get(165)
	if second.State != StatePending {
		t.Errorf("second item state = %s, want pending", second.State)
	}
}

func TestService_ProcessItem_download_failure(t *testing.T) {
	station := &fakeEPGStation{videos: map[string][]byte{}}
	tc := &fakeTranscoder{total: 10}
	svc, _ := newTestService(t, station, tc, nil)

	err := svc.ProcessItem(context.Background(), Item{RecordedID: 1, VideoFileID: 404, FileName: "rec1.ts"})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageDownload {
		t.Fatalf("expected download StageError, got %v", err)
	}
	var status *epgstation.StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 StatusError, got %v", err)
	}
	if len(tc.calls) != 0 {
		t.Error("transcode must not run after a failed download")
	}
}

func TestService_EncodedPath(t *testing.T) {
	svc := NewService(nil, nil, nil, Options{WorkDir: "/work"})
	it := Item{FileName: "rec.2024.ts"}
	if got := svc.EncodedPath(it); got != filepath.Join("/work", "rec.2024.mp4") {
		t.Errorf("EncodedPath = %q", got)
	}
	if got := svc.SourcePath(it); got != filepath.Join("/work", "rec.2024.ts") {
		t.Errorf("SourcePath = %q", got)
	}
}

func TestRunStage_view_sees_last_value(t *testing.T) {
	view := newRecordingView()
	last, err := runStage(view, Item{}, StageUpload, transferPair, func(sink progress.Sink[epgstation.TransferProgress]) error {
		for i := uint64(1); i <= 1000; i++ {
			sink.TrySend(epgstation.TransferProgress{CurrentBytes: i, TotalBytes: 1000})
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if last.CurrentBytes != 1000 {
		t.Errorf("last = %+v", last)
	}
	if u, _ := view.last(StageUpload); u.current != 1000 {
		t.Errorf("view last = %+v", u)
	}
	if len(view.finished) != 1 {
		t.Errorf("Finish calls = %d", len(view.finished))
	}
}

func TestService_Run_rejects_duplicate_ids(t *testing.T) {
	station := &fakeEPGStation{videos: map[string][]byte{"900": []byte("data")}}
	tc := &fakeTranscoder{total: 10}
	svc, _ := newTestService(t, station, tc, nil)

	items := []Item{
		{RecordedID: 164, VideoFileID: 900, FileName: "rec164.ts"},
		{RecordedID: 164, VideoFileID: 900, FileName: "rec164.ts"},
	}
	err := svc.Run(context.Background(), items)
	if !errors.Is(err, ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}
	var se *StageError
	if errors.As(err, &se) {
		t.Errorf("duplicate ids must not be reported as a stage failure: %v", err)
	}
	if len(station.downloads) != 0 || len(tc.calls) != 0 {
		t.Errorf("nothing should run, downloads=%v transcodes=%v", station.downloads, tc.calls)
	}
	if snap := svc.Repository().Snapshot(); len(snap) != 0 {
		t.Errorf("nothing should be enqueued, got %+v", snap)
	}
}

func TestService_Run_rejects_already_finished_item(t *testing.T) {
	station := &fakeEPGStation{videos: map[string][]byte{"900": []byte("data")}}
	svc, _ := newTestService(t, station, &fakeTranscoder{total: 10}, nil)

	item := Item{RecordedID: 164, VideoFileID: 900, FileName: "rec164.ts"}
	if err := svc.Run(context.Background(), []Item{item}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	err := svc.Run(context.Background(), []Item{item})
	if !errors.Is(err, ErrItemFinished) {
		t.Fatalf("expected ErrItemFinished, got %v", err)
	}
	if len(station.downloads) != 1 {
		t.Errorf("second run should not download again, downloads=%v", station.downloads)
	}
}
