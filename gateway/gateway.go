package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultscope/logsource"
	"vaultscope/report"
)

// reportTimeout bounds a full report generation, pagination included. This
// is the surrounding timeout the pipeline itself does not carry.
const reportTimeout = 2 * time.Minute

// ReportService is the surface the gateway exposes over HTTP.
type ReportService interface {
	GenerateByOwner(ctx context.Context, owner common.Address) (*report.Report, error)
	GenerateByPosition(ctx context.Context, id *big.Int) (*report.Report, error)
}

type routes struct {
	svc     ReportService
	log     *slog.Logger
	timeout time.Duration
}

// New builds the HTTP handler serving reports, health and metrics.
func New(svc ReportService, log *slog.Logger, ratePerMin int) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	rt := &routes{svc: svc, log: log, timeout: reportTimeout}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimit(ratePerMin, log))
		r.Get("/reports/{owner}", rt.getReport)
		r.Get("/positions/{id}", rt.getPosition)
	})
	return r
}

func (rt *routes) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, rt.timeout)
}

func (rt *routes) getReport(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "owner")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	ctx, cancel := rt.context(r.Context())
	defer cancel()

	rep, err := rt.svc.GenerateByOwner(ctx, common.HexToAddress(raw))
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (rt *routes) getPosition(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}
	ctx, cancel := rt.context(r.Context())
	defer cancel()

	rep, err := rt.svc.GenerateByPosition(ctx, id)
	if err != nil {
		rt.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (rt *routes) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrNoPositions):
		writeError(w, http.StatusNotFound, "no positions found for owner")
	case errors.Is(err, report.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, logsource.ErrRateLimited):
		writeError(w, http.StatusServiceUnavailable, "upstream log api throttled, retry later")
	case errors.Is(err, report.ErrConnectivity):
		writeError(w, http.StatusBadGateway, "position source unreachable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "report generation timed out")
	default:
		rt.log.Error("report generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
