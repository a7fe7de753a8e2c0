package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/pipeline"
)

var servePort int

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		intake := newIntakeServer(cfg.Server.QueueSize, defaultsFromConfig())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           intake.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			return intake.work(gctx, env.Pipeline)
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// leadRunner runs one lead through the pipeline.
type leadRunner interface {
	Run(ctx context.Context, id model.Identity, meta model.LeadMeta) (*pipeline.Result, error)
}

type job struct {
	ID       string
	Identity model.Identity
	Meta     model.LeadMeta
}

// intakeServer accepts leads over HTTP and hands them to one worker.
type intakeServer struct {
	queue    chan job
	defaults intakeDefaults
}

func newIntakeServer(queueSize int, defaults intakeDefaults) *intakeServer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &intakeServer{queue: make(chan job, queueSize), defaults: defaults}
}

func (s *intakeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queued": len(s.queue)})
	})
	r.Post("/v1/leads", s.handleLead)
	return r
}

func (s *intakeServer) handleLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	id, meta, err := req.normalize(s.defaults)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	j := job{ID: uuid.NewString(), Identity: id, Meta: meta}
	select {
	case s.queue <- j:
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "intake queue is full"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"job_id":    j.ID,
		"source_id": meta.SourceID,
	})
}

// work runs queued jobs one at a time until ctx is done. A failed job is
// logged and the worker moves on.
func (s *intakeServer) work(ctx context.Context, runner leadRunner) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-s.queue:
			log := zap.L().With(zap.String("job_id", j.ID), zap.String("source_id", j.Meta.SourceID))
			result, err := runner.Run(ctx, j.Identity, j.Meta)
			if err != nil {
				log.Error("intake job failed", zap.Error(err))
				continue
			}
			log.Info("intake job complete",
				zap.Bool("phone", result.Lead.Notifiable()),
				zap.Bool("alerted", result.Alerted),
			)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
