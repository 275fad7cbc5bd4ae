package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	v1 "github.com/imrenagi/go-drive-upload/api/v1"
	"github.com/imrenagi/go-drive-upload/config"
	"github.com/imrenagi/go-drive-upload/notify"
	"github.com/imrenagi/go-drive-upload/storage"
	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// Store is a storage backend files are streamed to and listed from.
type Store interface {
	upload.Storage
	v1.Lister
}

type Opts struct {
	Config *config.Config
}

func New(opts Opts) Server {
	s := Server{
		opts: opts,
	}
	return s
}

type Server struct {
	opts Opts
}

// Run serves the drive until ctx is cancelled, then shuts the HTTP server
// down gracefully and releases the storage and notification backends.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("starting server")
	cfg := s.opts.Config

	telemetryShutdownFn, err := initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := telemetryShutdownFn(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry providers")
		}
	}()

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Msg("failed to release backend")
			}
		}
	}()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}

	hub := notify.NewHub()
	var mirrors []upload.Notifier
	if cfg.NATS.URL != "" {
		n, err := notify.NewNATS(cfg.NATS, cfg.Telemetry.ServiceName)
		if err != nil {
			return err
		}
		closers = append(closers, n)
		mirrors = append(mirrors, n)
		log.Info().Str("subject", cfg.NATS.Subject).Msg("mirroring progress events to NATS")
	}
	if cfg.Redis.Addr != "" {
		r := notify.NewRedis(cfg.Redis)
		closers = append(closers, r)
		if err := r.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		mirrors = append(mirrors, r)
		log.Info().Str("channel", cfg.Redis.Channel).Msg("mirroring progress events to redis")
	}

	coordinator := upload.NewCoordinator(store, notify.NewFanout(hub, mirrors...),
		upload.WithWindow(cfg.Upload.ProgressWindow),
		upload.WithChunkSize(cfg.Upload.ChunkSize))
	controller := v1.NewController(coordinator, store, v1.WithMaxBytes(cfg.Upload.MaxBytes))

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: newHTTPHandler(cfg.Server, controller, hub),
		// No ReadTimeout or WriteTimeout: an upload may stream for as long as
		// the client keeps sending. ReadHeaderTimeout still guards against
		// slowloris.
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("Starting http server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		log.Warn().Msg("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown http server gracefully")
		}
		log.Warn().Msg("http server gracefully stopped")
		return nil
	})
	return g.Wait()
}

func newStore(ctx context.Context, cfg *config.Config) (Store, error) {
	owner := cfg.Upload.Owner
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		log.Info().Str("bucket", cfg.GCS.Bucket).Msg("storing uploads in GCS")
		return storage.NewGCS(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix, owner)
	case config.BackendMinio:
		log.Info().Str("bucket", cfg.Minio.BucketName).Msg("storing uploads in MinIO")
		return storage.NewMinIO(ctx, cfg.Minio, owner)
	default:
		log.Info().Str("dir", cfg.Upload.Dir).Msg("storing uploads on disk")
		return storage.NewDisk(cfg.Upload.Dir, owner)
	}
}

func newHTTPHandler(cfg config.ServerConfig, api *v1.Controller, hub *notify.Hub) http.Handler {
	mux := mux.NewRouter()
	mux.Use(
		otelhttp.NewMiddleware("drive"),
		LogInterceptor,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}),
		wildcardOrigin(cfg.AllowedOrigins))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", http.HandlerFunc(healthz)).Methods(http.MethodGet)
	mux.Handle("/socket", otelhttp.WithRouteTag("/socket", hub)).Methods(http.MethodGet)
	mux.Handle("/app", otelhttp.WithRouteTag("/app", v1.Web())).Methods(http.MethodGet)
	mux.PathPrefix("/").Handler(otelhttp.WithRouteTag("/", api))

	return otelhttp.NewHandler(mux, "/")
}

// wildcardOrigin shares responses to requests without an Origin header when
// every origin is allowed. cors only answers requests that carry one.
func wildcardOrigin(origins []string) mux.MiddlewareFunc {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wildcard && r.Header.Get("Origin") == "" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(v1.ContentTypeHeader, "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
