package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	inboxapi "haven/cmd/internal/inbox/api"
	"haven/cmd/internal/job"
	"haven/cmd/internal/notify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	registry *prometheus.Registry,
	inboxAPI *inboxapi.Handler,
	ws *notify.WSGateway,
	runner *job.Runner,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if inboxAPI != nil {
		inboxAPI.Register(mux)
	}

	mux.HandleFunc("/admin/inbox/run", handleBatchRun(log, runner))

	mux.HandleFunc("/ws", ws.HandleWS)
}

type batchRunRequest struct {
	UserIDs []string `json:"userIds"`
}

// handleBatchRun triggers one batch delivery run over the given users.
// Meant for the scheduler, not for end users.
func handleBatchRun(log Logger, runner *job.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if runner == nil {
			http.Error(w, "batch runner not configured", http.StatusServiceUnavailable)
			return
		}

		var req batchRunRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		report, err := runner.Run(r.Context(), req.UserIDs)
		if err != nil {
			if errors.Is(err, job.ErrNoUsers) {
				http.Error(w, "userIds is required", http.StatusBadRequest)
				return
			}
			log.Error("admin.batch.fail", "err", err)
			http.Error(w, "batch run failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(report)
	}
}
