package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"quantlab/internal/logger"
	"quantlab/internal/model"
)

// maxBodyBytes bounds request bodies; bar uploads dominate.
const maxBodyBytes = 32 << 20

// resultReader is implemented by publishers that can read results back.
type resultReader interface {
	Latest(ctx context.Context, id string) (*model.Result, error)
}

// Handler returns the service's HTTP routes.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/compute", svc.handleCompute)
	mux.HandleFunc("POST /v1/compute/batch", svc.handleComputeBatch)
	mux.HandleFunc("GET /v1/manifest", svc.handleManifest)
	mux.HandleFunc("GET /v1/manifest/{kind}", svc.handleManifestKind)
	mux.HandleFunc("POST /v1/bars", svc.handleWriteBars)
	mux.HandleFunc("GET /v1/bars", svc.handleReadBars)
	mux.HandleFunc("GET /v1/series", svc.handleSeries)
	mux.HandleFunc("GET /v1/results/{id}", svc.handleLatestResult)
	mux.HandleFunc("POST /v1/cache/clear", svc.handleCacheClear)
	mux.HandleFunc("GET /v1/ws", svc.handleWS)
	mux.Handle("GET /healthz", svc.health)
	mux.Handle("GET /metrics", svc.prom.Handler())
	return withRequestID(mux)
}

// withRequestID tags each request's context with X-Request-ID, minting one
// when the client sent none.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
		slog.Debug("http request", "request_id", id, "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (svc *Service) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, hit, err := svc.Compute(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ComputeResponse{Result: res, Cached: hit})
}

func (svc *Service) handleComputeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{Results: svc.ComputeBatch(r.Context(), req.Requests)})
}

func (svc *Service) handleManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, svc.engine.Manifest().All())
}

func (svc *Service) handleManifestKind(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	ind, ok := svc.engine.Manifest().Lookup(kind)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown indicator kind: "+kind)
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

func (svc *Service) handleWriteBars(w http.ResponseWriter, r *http.Request) {
	var req WriteBarsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Symbol == "" || req.TF <= 0 {
		writeError(w, http.StatusBadRequest, "symbol and tf are required")
		return
	}
	for i := 1; i < len(req.Bars); i++ {
		if req.Bars[i].Time <= req.Bars[i-1].Time {
			writeError(w, http.StatusBadRequest, "bars must be strictly ascending by time")
			return
		}
	}
	if err := svc.WriteBars(r.Context(), req.Symbol, req.TF, req.Bars); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "written": len(req.Bars)})
}

func (svc *Service) handleReadBars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	tf, err := strconv.Atoi(q.Get("tf"))
	if symbol == "" || err != nil || tf <= 0 {
		writeError(w, http.StatusBadRequest, "symbol and tf are required")
		return
	}
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}

	if svc.bars == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoBars.Error())
		return
	}
	bars, err := svc.bars.ReadBars(r.Context(), symbol, tf, from, to)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if bars == nil {
		bars = []model.Bar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// parseTime parses an optional unix-seconds query value; empty means 0
// (unbounded).
func parseTime(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (svc *Service) handleSeries(w http.ResponseWriter, r *http.Request) {
	series, err := svc.Series(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (svc *Service) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	rr, ok := svc.pub.(resultReader)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "result publishing is disabled")
		return
	}
	id := r.PathValue("id")
	res, err := rr.Latest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "no result for "+id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (svc *Service) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := svc.authorize(r); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	n := svc.cache.Len()
	svc.cache.Clear()
	svc.prom.CacheEntries.Set(0)
	slog.Info("compute cache cleared", append(logger.Attrs(r.Context()), "entries", n)...)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "cleared": n})
}

// authorize checks X-Admin-TOTP against the configured secret. Without a
// secret every caller is allowed.
func (svc *Service) authorize(r *http.Request) error {
	if svc.cfg.AdminTOTPSecret == "" {
		return nil
	}
	code := r.Header.Get("X-Admin-TOTP")
	if code == "" || !totp.Validate(code, svc.cfg.AdminTOTPSecret) {
		return ErrUnauthorized
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoBars), errors.Is(err, ErrNoSubscriptions):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
