// Package server orchestrates all components: NATS client, DB audit log, operation registry, pipeline, HTTP health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/directive-dispatch/internal/config"
	"github.com/morezero/directive-dispatch/pkg/bootstrap"
	"github.com/morezero/directive-dispatch/pkg/commsutil"
	"github.com/morezero/directive-dispatch/pkg/db"
	"github.com/morezero/directive-dispatch/pkg/dispatcher"
	"github.com/morezero/directive-dispatch/pkg/events"
	"github.com/morezero/directive-dispatch/pkg/operations"
	"github.com/morezero/directive-dispatch/pkg/registry"
)

const logPrefix = "server:server"

// dispatchStore is the part of db.Repository the HTTP endpoints read from.
type dispatchStore interface {
	Ping(ctx context.Context) error
	GetDispatch(ctx context.Context, id string) (*db.DispatchRecord, error)
	ListRecent(ctx context.Context, operation string, limit int) ([]db.DispatchRecord, error)
	CountByCode(ctx context.Context) ([]db.CodeCount, error)
}

// Server is the directive-dispatch orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	store      dispatchStore
	httpServer *http.Server
	reg        *registry.Registry
	router     *dispatcher.Router
}

// HealthChecks reports the state of each dependency. Database is nil when no DATABASE_URL is set.
type HealthChecks struct {
	Comms    bool  `json:"comms"`
	Database *bool `json:"database,omitempty"`
}

// HealthOutput is the /health response body.
type HealthOutput struct {
	Status     string       `json:"status"`
	Checks     HealthChecks `json:"checks"`
	Operations int          `json:"operations"`
	Timestamp  string       `json:"timestamp"`
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting directive-dispatch", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load the operation catalog and bind handlers
	catalog, err := bootstrap.LoadCatalog(cfg.OperationsFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load operation catalog: %w", logPrefix, err)
	}
	reg, err := bootstrap.BuildRegistry(catalog, operations.NewRunner(os.Stdout).Handlers())
	if err != nil {
		return fmt.Errorf("%s - failed to build registry: %w", logPrefix, err)
	}
	s.reg = reg
	slog.Info(fmt.Sprintf("%s - Catalog %s@%s: %d operations", logPrefix, catalog.Name, catalog.Version, reg.Count()))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	publishers := events.MultiPublisher{
		events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.DispatchEventSubject}),
	}

	// Step 3: Optional database audit log
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				s.close()
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				s.close()
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}

		repo := db.NewRepository(pool)
		s.store = repo
		publishers = append(publishers, db.NewAuditPublisher(repo))
		slog.Info(fmt.Sprintf("%s - Dispatch audit log enabled", logPrefix))
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, dispatch audit log disabled", logPrefix))
	}

	// Step 4: Pipeline and router
	pipeline := dispatcher.NewPipeline(dispatcher.NewDispatcher(reg), &dispatcher.PipelineOpts{
		Syntax:    cfg.Syntax(),
		Publisher: publishers,
	})
	s.router = dispatcher.NewRouter(pipeline)

	// Step 5: Subscribe to the directive subject
	sub, err := nc.Subscribe(cfg.DirectiveSubject, func(msg *comms.Msg) {
		if data := s.handleMessage(ctx, msg.Data); data != nil {
			if err := msg.Respond(data); err != nil {
				slog.Warn(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
			}
		}
	})
	if err != nil {
		s.close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, cfg.DirectiveSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cfg.DirectiveSubject))

	// Step 6: Start HTTP health server
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.newMux()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - directive-dispatch is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	sub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	s.close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) close() {
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// handleMessage decodes a request envelope, routes it under the request timeout and encodes the response.
func (s *Server) handleMessage(ctx context.Context, data []byte) []byte {
	var req dispatcher.DirectiveRequest
	if err := commsutil.DecodePayload(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		return s.encode(&dispatcher.DirectiveResponse{
			Ok: false,
			Error: &dispatcher.ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: "Failed to decode request",
			},
		})
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	return s.encode(s.router.Handle(reqCtx, &req))
}

func (s *Server) encode(resp *dispatcher.DirectiveResponse) []byte {
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return nil
	}
	return data
}

func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/operations", s.handleOperations())
	mux.HandleFunc("/dispatches", s.handleDispatches())
	mux.HandleFunc("/dispatches/", s.handleDispatchDetail())
	mux.HandleFunc("/dispatches/stats", s.handleStats())
	return mux
}

// health checks NATS and, when configured, the database.
func (s *Server) health(ctx context.Context) *HealthOutput {
	out := &HealthOutput{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	out.Checks.Comms = s.nc != nil && s.nc.IsConnected()
	if !out.Checks.Comms {
		out.Status = "unhealthy"
	}
	if s.store != nil {
		ok := s.store.Ping(ctx) == nil
		out.Checks.Database = &ok
		if !ok {
			out.Status = "unhealthy"
		}
	}
	if s.reg != nil {
		out.Operations = s.reg.Count()
	}
	return out
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.router == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleOperations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if s.reg == nil {
			writeJSON(w, http.StatusOK, []registry.Declaration{})
			return
		}
		writeJSON(w, http.StatusOK, s.reg.Declarations())
	}
}

// handleDispatches lists recent audit records, optionally filtered by ?operation= and capped by ?limit=.
func (s *Server) handleDispatches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if s.store == nil {
			http.Error(w, "dispatch audit log not configured", http.StatusNotFound)
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records, err := s.store.ListRecent(r.Context(), r.URL.Query().Get("operation"), limit)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - list dispatches: %v", logPrefix, err))
			http.Error(w, "failed to list dispatches", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []db.DispatchRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) handleDispatchDetail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/dispatches/")
		if id == "" {
			http.Redirect(w, r, "/dispatches", http.StatusFound)
			return
		}
		if s.store == nil {
			http.Error(w, "dispatch audit log not configured", http.StatusNotFound)
			return
		}
		// ids are UUIDs; anything else cannot match and would be rejected by the column type
		parsed, err := uuid.Parse(id)
		if err != nil {
			http.Error(w, "dispatch not found", http.StatusNotFound)
			return
		}
		id = parsed.String()
		rec, err := s.store.GetDispatch(r.Context(), id)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - get dispatch %s: %v", logPrefix, id, err))
			http.Error(w, "failed to load dispatch", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.Error(w, "dispatch not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if s.store == nil {
			http.Error(w, "dispatch audit log not configured", http.StatusNotFound)
			return
		}
		counts, err := s.store.CountByCode(r.Context())
		if err != nil {
			slog.Error(fmt.Sprintf("%s - count dispatches: %v", logPrefix, err))
			http.Error(w, "failed to count dispatches", http.StatusInternalServerError)
			return
		}
		if counts == nil {
			counts = []db.CodeCount{}
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := commsutil.EncodePayload(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", logPrefix, err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
