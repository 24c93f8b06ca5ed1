package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/internal/log"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/service"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// NewHandler routes the engine's operations.
func NewHandler(engine *service.Engine) http.Handler {
	h := &handler{engine: engine}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler)

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)

	mux.HandleFunc("POST /steps/{id}/start", h.stepAction(engine.StartStep))
	mux.HandleFunc("POST /steps/{id}/complete", h.completeStep)
	mux.HandleFunc("POST /steps/{id}/block", h.blockStep)
	mux.HandleFunc("POST /steps/{id}/unblock", h.stepAction(engine.UnblockStep))

	mux.HandleFunc("POST /work-units", h.createWorkUnit)
	mux.HandleFunc("POST /work-units/{scanCode}/status", h.updateWorkUnit)

	mux.HandleFunc("POST /metrics/samples", h.recordSamples)
	mux.HandleFunc("POST /workspaces/{ws}/evaluate", h.evaluate)
	mux.HandleFunc("GET /workspaces/{ws}/alerts", h.alerts)
	mux.HandleFunc("GET /workspaces/{ws}/recommendations", h.recommendations)
	mux.HandleFunc("POST /workspaces/{ws}/alerts/{id}/resolve", h.resolveAlert)

	mux.Handle("GET /metrics", promhttp.HandlerFor(NewMetricsRegistry(engine.Metrics()), promhttp.HandlerOpts{}))
	return mux
}

// StartServer serves the API until ctx is cancelled, then drains in-flight requests.
func StartServer(ctx context.Context, port string, engine *service.Engine) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           NewHandler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Infof("Starting routing server on :%s", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.GetLogger().Infof("Shutting down routing server")
		return srv.Shutdown(shutdownCtx)
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type handler struct {
	engine *service.Engine
}

// actionRequest is the body of step and order actions.
type actionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req service.OrderRequest
	if !decode(w, r, &req) {
		return
	}
	plan, err := h.engine.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.engine.ListOrders(r.Context(), q.Get("workspace"), models.OrderStatus(q.Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.engine.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	order, err := h.engine.CancelOrder(r.Context(), r.PathValue("id"), req.Actor, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *handler) stepAction(fn func(ctx context.Context, stepID, actor string) (models.Step, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if !decode(w, r, &req) {
			return
		}
		step, err := fn(r.Context(), r.PathValue("id"), req.Actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, step)
	}
}

func (h *handler) blockStep(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	step, err := h.engine.BlockStep(r.Context(), r.PathValue("id"), req.Actor, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *handler) completeStep(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decode(w, r, &req) {
		return
	}
	ready, err := h.engine.CompleteStep(r.Context(), r.PathValue("id"), req.Actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": ready})
}

func (h *handler) createWorkUnit(w http.ResponseWriter, r *http.Request) {
	var req service.WorkUnitRequest
	if !decode(w, r, &req) {
		return
	}
	unit, err := h.engine.CreateWorkUnit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}

func (h *handler) updateWorkUnit(w http.ResponseWriter, r *http.Request) {
	var upd service.WorkUnitUpdate
	if !decode(w, r, &upd) {
		return
	}
	upd.ScanCode = r.PathValue("scanCode")
	unit, err := h.engine.UpdateWorkUnitStatus(r.Context(), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

// recordSamples accepts a single sample or an array of samples.
func (h *handler) recordSamples(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decode(w, r, &raw) {
		return
	}
	var samples []models.MetricSample
	if err := json.Unmarshal(raw, &samples); err != nil {
		var one models.MetricSample
		if err := json.Unmarshal(raw, &one); err != nil {
			writeProblem(w, http.StatusBadRequest, "bad_request", "body must be a sample or an array of samples")
			return
		}
		samples = []models.MetricSample{one}
	}
	recorded, err := h.engine.RecordMetricSamples(r.Context(), samples)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"samples": recorded})
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	eval, err := h.engine.EvaluateWorkspace(r.Context(), r.PathValue("ws"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (h *handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.engine.GetActiveAlerts(r.Context(), r.PathValue("ws"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *handler) recommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.engine.GetRecommendations(r.Context(), r.PathValue("ws"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (h *handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.ResolveAlert(r.Context(), r.PathValue("ws"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type problem struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Status  int      `json:"status"`
	Detail  string   `json:"detail"`
	Allowed []string `json:"allowed,omitempty"`
}

func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, problem{Type: typ, Title: http.StatusText(code), Status: code, Detail: detail})
}

// writeError maps engine errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, typ := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, models.ErrNotFound):
		code, typ = http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrConflictingUpdate):
		code, typ = http.StatusConflict, "conflicting_update"
	case errors.Is(err, models.ErrDuplicateScanCode):
		code, typ = http.StatusConflict, "duplicate_scan_code"
	case errors.Is(err, models.ErrIllegalTransition):
		code, typ = http.StatusUnprocessableEntity, "illegal_transition"
	case errors.Is(err, models.ErrUnknownMethod):
		code, typ = http.StatusUnprocessableEntity, "unknown_method"
	case errors.Is(err, models.ErrCyclicDependency):
		code, typ = http.StatusUnprocessableEntity, "cyclic_dependency"
	case errors.Is(err, models.ErrInvalidInput):
		code, typ = http.StatusBadRequest, "invalid_input"
	}
	if code == http.StatusInternalServerError {
		log.GetLogger().Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		log.GetLogger().Debugf("%s %s rejected: %v", r.Method, r.URL.Path, err)
	}

	p := problem{Type: typ, Title: http.StatusText(code), Status: code, Detail: err.Error()}
	var illegal *models.IllegalTransitionError
	if errors.As(err, &illegal) {
		p.Allowed = illegal.Allowed
	}
	writeJSON(w, code, p)
}
