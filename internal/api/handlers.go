package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/execution"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/reconcile"
	"github.com/ignite/segflow/internal/service"
	"github.com/ignite/segflow/internal/template"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	svc      *service.Service
	executor *execution.Executor
}

// NewHandlers creates a Handlers instance.
func NewHandlers(svc *service.Service, executor *execution.Executor) *Handlers {
	return &Handlers{svc: svc, executor: executor}
}

type envelope struct {
	Success bool        `json:"success"`
	Value   interface{} `json:"value"`
}

func respond(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Success: true, Value: value})
}

// respondErr maps error kinds onto status codes: caller mistakes are
// 400, everything else (missing entities included) falls through the
// generic 500 path.
func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var validation *engine.ValidationError
	var constraint *engine.ConstraintError
	var unsupported *engine.UnsupportedError
	switch {
	case errors.As(err, &validation),
		errors.As(err, &constraint),
		errors.As(err, &unsupported):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondErr(w, engine.Validationf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// HealthCheck reports DB reachability and executor liveness. No auth.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbOK := h.svc.DB().PingContext(r.Context()) == nil
	steps, stepErrors := h.executor.Stats()
	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"database":      dbOK,
		"lastTickAt":    h.executor.LastRunAt().UTC().Format(time.RFC3339Nano),
		"stepsAdvanced": steps,
		"stepErrors":    stepErrors,
	})
}

type attributesBody struct {
	Attributes map[string]interface{} `json:"attributes"`
}

// CreateUser handles POST /api/user/{id}.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body attributesBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.svc.CreateUser(r.Context(), chi.URLParam(r, "id"), body.Attributes); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// UpdateUser handles PATCH /api/user/{id}.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var body attributesBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.svc.UpdateUser(r.Context(), chi.URLParam(r, "id"), body.Attributes); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// GetUser handles GET /api/user/{id}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, u.Attributes)
}

// DeleteUser handles DELETE /api/user/{id}.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// EmitEvent handles POST /api/user/{id}/event/{name}.
func (h *Handlers) EmitEvent(w http.ResponseWriter, r *http.Request) {
	var body attributesBody
	if !decode(w, r, &body) {
		return
	}
	err := h.svc.EmitEvent(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"), body.Attributes)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"event": chi.URLParam(r, "name")})
}

// ListEvents handles GET /api/user/{id}/event.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, events)
}

// UserSegments handles GET /api/user/{id}/segment.
func (h *Handlers) UserSegments(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.UserSegments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, ids)
}

// UserExecutions handles GET /api/user/{id}/execution.
func (h *Handlers) UserExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := h.svc.UserExecutions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, execs)
}

type segmentBody struct {
	Evaluator string `json:"evaluator"`
}

// CreateSegment handles POST /api/segment/{id}.
func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var body segmentBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.svc.CreateSegment(r.Context(), chi.URLParam(r, "id"), body.Evaluator); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// UpdateSegment handles PATCH /api/segment/{id}.
func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var body segmentBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.svc.UpdateSegment(r.Context(), chi.URLParam(r, "id"), body.Evaluator); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// DeleteSegment handles DELETE /api/segment/{id}.
func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSegment(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// GetSegment handles GET /api/segment/{id}.
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.svc.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, seg)
}

// ListSegments handles GET /api/segment.
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.svc.ListSegments(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, segments)
}

// SegmentMembers handles GET /api/segment/{id}/user.
func (h *Handlers) SegmentMembers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.SegmentMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, users)
}

// PreviewSegment handles POST /api/segment/preview.
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var body segmentBody
	if !decode(w, r, &body) {
		return
	}
	ids, err := h.svc.PreviewSegment(r.Context(), body.Evaluator)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, ids)
}

type campaignBody struct {
	Flow            string   `json:"flow"`
	Segments        []string `json:"segments"`
	ExcludeSegments []string `json:"excludeSegments"`
	Behavior        string   `json:"behavior"`
}

// CreateCampaign handles POST /api/campaign/{id}.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body campaignBody
	if !decode(w, r, &body) {
		return
	}
	c := &campaign.Campaign{
		ID:              chi.URLParam(r, "id"),
		Flow:            body.Flow,
		Behavior:        campaign.Behavior(body.Behavior),
		Segments:        body.Segments,
		ExcludeSegments: body.ExcludeSegments,
	}
	if err := h.svc.CreateCampaign(r.Context(), c); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": c.ID})
}

// DeleteCampaign handles DELETE /api/campaign/{id}.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCampaign(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// GetCampaign handles GET /api/campaign/{id}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, c)
}

// ListCampaigns handles GET /api/campaign.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.svc.ListCampaigns(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, campaigns)
}

type templateBody struct {
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Preamble string `json:"preamble"`
}

// CreateTemplate handles POST /api/template/{id}.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateBody
	if !decode(w, r, &body) {
		return
	}
	t := &template.Template{
		ID:       chi.URLParam(r, "id"),
		Subject:  body.Subject,
		HTML:     body.HTML,
		Preamble: body.Preamble,
	}
	if err := h.svc.CreateTemplate(r.Context(), t); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": t.ID})
}

// UpdateTemplate handles PATCH /api/template/{id}.
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var body templateBody
	if !decode(w, r, &body) {
		return
	}
	t := &template.Template{
		ID:       chi.URLParam(r, "id"),
		Subject:  body.Subject,
		HTML:     body.HTML,
		Preamble: body.Preamble,
	}
	if err := h.svc.UpdateTemplate(r.Context(), t); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": t.ID})
}

// DeleteTemplate handles DELETE /api/template/{id}.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"id": chi.URLParam(r, "id")})
}

// GetTemplate handles GET /api/template/{id}.
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, t)
}

// ListTemplates handles GET /api/template.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.ListTemplates(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, templates)
}

// GetTransaction handles GET /api/transaction/{id}.
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, t)
}

// ListTransactions handles GET /api/transaction.
func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.svc.ListTransactions(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, transactions)
}

// SetEmailProvider handles POST /api/email/config.
func (h *Handlers) SetEmailProvider(w http.ResponseWriter, r *http.Request) {
	var body mailer.Provider
	if !decode(w, r, &body) {
		return
	}
	if err := h.svc.SetEmailProvider(r.Context(), &body); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, map[string]string{"provider": body.Config.Name})
}

// PushConfig handles POST /api/config.
func (h *Handlers) PushConfig(w http.ResponseWriter, r *http.Request) {
	var doc reconcile.Document
	if !decode(w, r, &doc) {
		return
	}
	result, err := h.svc.PushConfig(r.Context(), &doc)
	if err != nil {
		respondErr(w, err)
		return
	}
	if result.NoChanges {
		respond(w, "no changes")
		return
	}
	respond(w, result)
}

// CurrentConfig handles GET /api/config.
func (h *Handlers) CurrentConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.CurrentConfig(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, doc)
}
