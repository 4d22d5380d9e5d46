package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"epg-encoder/internal/epgstation"
	"epg-encoder/internal/ffmpeg"
	"epg-encoder/internal/platform/metrics"
	"epg-encoder/internal/progress"
)

// Transferer moves video files to and from the recorder.
// *epgstation.Client implements it.
type Transferer interface {
	DownloadVideoFile(ctx context.Context, id epgstation.VideoFileID, dst string, sink progress.Sink[epgstation.TransferProgress]) error
	UploadVideoFile(ctx context.Context, path string, prop epgstation.VideoFileProperty, sink progress.Sink[epgstation.TransferProgress]) error
}

// Transcoder converts a downloaded file into the upload format.
// *ffmpeg.Transcoder implements it.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, sink progress.Sink[ffmpeg.Progress]) error
}

// ProgressView consumes the progress of one stage at a time. Begin is called
// before the stage starts, Update from the stage's consumer goroutine, and
// Finish once the stage's channel is closed.
type ProgressView interface {
	Begin(item Item, stage Stage)
	Update(stage Stage, current, total uint64)
	Finish(item Item, stage Stage)
}

// NopView discards all progress.
type NopView struct{}

func (NopView) Begin(Item, Stage)            {}
func (NopView) Update(Stage, uint64, uint64) {}
func (NopView) Finish(Item, Stage)           {}

// UploadTarget is the filing applied to every uploaded file.
type UploadTarget struct {
	ParentDirectoryName string
	SubDirectory        string
	ViewName            string
	FileType            string
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	WorkDir string
	Upload  UploadTarget
	View    ProgressView
	Logger  *slog.Logger
	Metrics *metrics.Metrics // may be nil
}

// StageError reports the item and stage an error happened in.
type StageError struct {
	RecordedID epgstation.RecordedID
	Stage      Stage
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("item %d: %s: %v", e.RecordedID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Service drives items through download, transcode, upload and cleanup, one
// item and one stage at a time.
type Service struct {
	transfer   Transferer
	transcoder Transcoder
	repo       Repository
	workDir    string
	upload     UploadTarget
	view       ProgressView
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewService returns a Service. repo may be nil, in which case a fresh
// InMemoryRepository is used.
func NewService(transfer Transferer, transcoder Transcoder, repo Repository, opts Options) *Service {
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	if opts.View == nil {
		opts.View = NopView{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		transfer:   transfer,
		transcoder: transcoder,
		repo:       repo,
		workDir:    opts.WorkDir,
		upload:     opts.Upload,
		view:       opts.View,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Repository returns the run-state repository the service writes to.
func (s *Service) Repository() Repository { return s.repo }

// ErrDuplicateItem is returned by Run when a recorded id appears more than
// once in the item list.
var ErrDuplicateItem = errors.New("duplicate item")

// Run processes items in order. The first failing item stops the run: its
// error is returned and the remaining items stay pending. The list is checked
// before anything starts; repeated ids or items this service already
// finished are rejected without processing any item.
func (s *Service) Run(ctx context.Context, items []Item) error {
	if err := s.checkItems(items); err != nil {
		return err
	}
	s.repo.Enqueue(items)
	s.metrics.SetPendingItems(s.repo.PendingCount())
	s.log.Info("run started", slog.Int("items", len(items)))

	for i, it := range items {
		if err := s.ProcessItem(ctx, it); err != nil {
			s.log.Error("run aborted",
				slog.Uint64("recorded_id", uint64(it.RecordedID)),
				slog.Int("remaining", len(items)-i-1),
				slog.String("error", err.Error()))
			return err
		}
	}

	s.log.Info("run finished", slog.Int("items", len(items)))
	return nil
}

func (s *Service) checkItems(items []Item) error {
	seen := make(map[epgstation.RecordedID]int, len(items))
	for i, it := range items {
		if j, dup := seen[it.RecordedID]; dup {
			return fmt.Errorf("%w: recorded id %d at positions %d and %d", ErrDuplicateItem, it.RecordedID, j, i)
		}
		seen[it.RecordedID] = i
		if st, ok := s.repo.Get(it.RecordedID); ok && st.State.Terminal() {
			return fmt.Errorf("%w: %d is %s", ErrItemFinished, it.RecordedID, st.State)
		}
	}
	return nil
}

// SourcePath is where the downloaded file of item is stored.
func (s *Service) SourcePath(it Item) string {
	return filepath.Join(s.workDir, it.FileName)
}

// EncodedPath is where the transcoded file of item is written: the source
// file name with its extension replaced by .mp4.
func (s *Service) EncodedPath(it Item) string {
	stem := strings.TrimSuffix(it.FileName, filepath.Ext(it.FileName))
	return filepath.Join(s.workDir, stem+".mp4")
}

// ProcessItem runs every stage of one item. On error the local files are left
// in place and the item is marked aborted.
func (s *Service) ProcessItem(ctx context.Context, it Item) error {
	s.repo.Enqueue([]Item{it})
	log := s.log.With(slog.Uint64("recorded_id", uint64(it.RecordedID)))
	src, dst := s.SourcePath(it), s.EncodedPath(it)

	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageDownload, func() error {
			last, err := runStage(s.view, it, StageDownload, transferPair, func(sink progress.Sink[epgstation.TransferProgress]) error {
				return s.transfer.DownloadVideoFile(ctx, it.VideoFileID, src, sink)
			})
			s.metrics.AddBytes("download", last.CurrentBytes)
			return err
		}},
		{StageTranscode, func() error {
			_, err := runStage(s.view, it, StageTranscode, transcodePair, func(sink progress.Sink[ffmpeg.Progress]) error {
				return s.transcoder.Transcode(ctx, src, dst, sink)
			})
			return err
		}},
		{StageUpload, func() error {
			last, err := runStage(s.view, it, StageUpload, transferPair, func(sink progress.Sink[epgstation.TransferProgress]) error {
				return s.transfer.UploadVideoFile(ctx, dst, s.uploadProperty(it, dst), sink)
			})
			s.metrics.AddBytes("upload", last.CurrentBytes)
			return err
		}},
		{StageCleanup, func() error { return removeAll(src, dst) }},
	}

	for _, step := range steps {
		if err := s.repo.Advance(it.RecordedID, stateFor(step.stage)); err != nil {
			return &StageError{RecordedID: it.RecordedID, Stage: step.stage, Err: err}
		}
		s.metrics.SetStage(string(step.stage), stageNames())
		log.Info("stage started", slog.String("stage", string(step.stage)))

		start := time.Now()
		err := step.run()
		s.metrics.ObserveStage(string(step.stage), time.Since(start))

		if err != nil {
			s.metrics.SetStage("", stageNames())
			s.metrics.IncItemsFailed(string(step.stage))
			_ = s.repo.Abort(it.RecordedID, step.stage, err)
			s.metrics.SetPendingItems(s.repo.PendingCount())
			log.Error("stage failed",
				slog.String("stage", string(step.stage)),
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", err.Error()))
			return &StageError{RecordedID: it.RecordedID, Stage: step.stage, Err: err}
		}
		log.Info("stage finished",
			slog.String("stage", string(step.stage)),
			slog.Duration("elapsed", time.Since(start)))
	}

	if err := s.repo.Advance(it.RecordedID, StateDone); err != nil {
		return &StageError{RecordedID: it.RecordedID, Stage: StageCleanup, Err: err}
	}
	s.metrics.SetStage("", stageNames())
	s.metrics.IncItemsProcessed()
	s.metrics.SetPendingItems(s.repo.PendingCount())
	log.Info("item done", slog.String("name", it.Name))
	return nil
}

func (s *Service) uploadProperty(it Item, path string) epgstation.VideoFileProperty {
	return epgstation.VideoFileProperty{
		FileName:            filepath.Base(path),
		RecordedID:          it.RecordedID,
		ParentDirectoryName: s.upload.ParentDirectoryName,
		SubDirectory:        s.upload.SubDirectory,
		ViewName:            s.upload.ViewName,
		FileType:            s.upload.FileType,
	}
}

// runStage gives fn the producer side of a fresh progress channel while one
// consumer goroutine forwards values to view. The channel is closed and the
// consumer joined before runStage returns, so the returned value is the last
// one the view saw.
func runStage[T any](view ProgressView, it Item, stage Stage, pair func(T) (uint64, uint64), fn func(progress.Sink[T]) error) (T, error) {
	ch := progress.New[T]()
	done := make(chan T, 1)

	view.Begin(it, stage)
	go func() {
		var last T
		for {
			v, ok := ch.Recv()
			if !ok {
				view.Finish(it, stage)
				done <- last
				return
			}
			last = v
			current, total := pair(v)
			view.Update(stage, current, total)
		}
	}()

	err := fn(ch)
	ch.Close()
	return <-done, err
}

func transferPair(p epgstation.TransferProgress) (uint64, uint64) {
	return p.CurrentBytes, p.TotalBytes
}

func transcodePair(p ffmpeg.Progress) (uint64, uint64) {
	return p.CurrentSecs, p.TotalSecs
}

// removeAll deletes every path and joins the errors.
func removeAll(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func stageNames() []string {
	names := make([]string, len(Stages))
	for i, st := range Stages {
		names[i] = string(st)
	}
	return names
}
