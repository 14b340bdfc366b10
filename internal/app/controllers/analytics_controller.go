package controllers

import (
	"net/http"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/services"
)

type AnalyticsController struct {
	pipeline *services.Pipeline
}

func NewAnalyticsController(pipeline *services.Pipeline) *AnalyticsController {
	return &AnalyticsController{pipeline: pipeline}
}

// Get devolve o snapshot completo do agregador.
func (c *AnalyticsController) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.pipeline.CurrentSnapshot(r.Context()))
}

// ResponseTimes calcula os tempos de resposta da janela pedida em
// ?hours= (default 24).
func (c *AnalyticsController) ResponseTimes(w http.ResponseWriter, r *http.Request) {
	stats, err := c.pipeline.ResponseTimesWindow(r.Context(), queryInt(r, "hours", 24))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Errors devolve o ring de erros categorizados, mais recentes por último.
func (c *AnalyticsController) Errors(w http.ResponseWriter, r *http.Request) {
	snap := c.pipeline.CurrentSnapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"errors": snap.Errors,
		"count":  len(snap.Errors),
	})
}

// Reset zera agregador e limiter. Irreversível.
func (c *AnalyticsController) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.pipeline.ResetAnalytics(r.Context()))
}
