// Command encoder re-encodes EPGStation recordings to AV1 and uploads the
// result back as an additional video file of the same recording.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"epg-encoder/internal/epgstation"
	"epg-encoder/internal/ffmpeg"
	"epg-encoder/internal/orchestrator"
	"epg-encoder/internal/platform/config"
	"epg-encoder/internal/platform/logger"
	"epg-encoder/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	_ = config.Load()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.New("error", "text", os.Stderr).Error("invalid configuration", slog.String("error", err.Error()))
		return 2
	}

	log := logger.New(settings.LogLevel, settings.LogFormat, os.Stderr)
	if id, err := uuid.NewV7(); err == nil {
		log = log.With(slog.String("run_id", id.String()))
	}

	// One HTTP client serves every request of the run.
	httpClient := &http.Client{Transport: logger.NewTransport(nil, log)}
	client, err := epgstation.NewClient(settings.EPGStationURL, httpClient)
	if err != nil {
		log.Error("invalid EPGSTATION_URL", slog.String("error", err.Error()))
		return 2
	}

	ctx := context.Background()

	records, err := client.QueryRecorded(ctx, recordedQuery(settings), 0, settings.QueryLimit)
	if err != nil {
		log.Error("query recorded programs failed", slog.String("error", err.Error()))
		return 1
	}
	sel := orchestrator.Selection{FileType: settings.SourceFileType}
	if settings.OnlyRecordedID != nil {
		id := epgstation.RecordedID(*settings.OnlyRecordedID)
		sel.RecordedID = &id
	}
	items := orchestrator.EligibleItems(records, sel)
	log.Info("items selected", slog.Int("records", len(records)), slog.Int("items", len(items)))

	met := metrics.New()
	repo := orchestrator.NewInMemoryRepository()

	var view orchestrator.ProgressView = orchestrator.NopView{}
	if w, interactive := pickProgressWriter(); interactive {
		view = newProgressUI(w)
	}

	svc := orchestrator.NewService(client, &ffmpeg.Transcoder{
		FFmpegPath: settings.FFmpegPath,
		Prober:     ffmpeg.Prober{Path: settings.FFprobePath},
		Logger:     log,
	}, repo, orchestrator.Options{
		WorkDir: settings.WorkDir,
		Upload: orchestrator.UploadTarget{
			ParentDirectoryName: settings.UploadParentDir,
			SubDirectory:        settings.UploadSubDir,
			ViewName:            settings.UploadViewName,
			FileType:            settings.UploadFileType,
		},
		View:    view,
		Logger:  log,
		Metrics: met,
	})

	var srv *http.Server
	if settings.StatusAddr != "" {
		srv = startStatusServer(settings.StatusAddr, orchestrator.NewHandler(repo, log, met), met, log)
	}

	runErr := svc.Run(ctx, items)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("status server shutdown error", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		log.Error("encode run failed", slog.String("error", runErr.Error()))
		return 1
	}
	return 0
}

func recordedQuery(s config.Settings) epgstation.RecordedQuery {
	q := epgstation.RecordedQuery{IsHalfWidth: s.QueryHalfWidth, IsReverse: s.QueryReverse}
	if s.QueryRuleID != nil {
		id := epgstation.RuleID(*s.QueryRuleID)
		q.RuleID = &id
	}
	if s.QueryChannelID != nil {
		id := epgstation.ChannelID(*s.QueryChannelID)
		q.ChannelID = &id
	}
	return q
}

func startStatusServer(addr string, h *orchestrator.Handler, met *metrics.Metrics, log *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	h.Routes(r)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server error", slog.String("error", err.Error()))
		}
	}()
	log.Info("status server starting", slog.String("addr", addr))
	return srv
}
