package controllers

import (
	"net/http"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/whatsapp"
)

// StatusController expõe o snapshot e as operações de ciclo de vida da
// sessão. Toda operação manual zera o contador de retries do supervisor.
type StatusController struct {
	sup *whatsapp.Supervisor
}

func NewStatusController(sup *whatsapp.Supervisor) *StatusController {
	return &StatusController{sup: sup}
}

func (c *StatusController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.sup.Status())
}

// QR devolve o último código pendente. Fora do estado qr_pending não há
// código para escanear.
func (c *StatusController) QR(w http.ResponseWriter, r *http.Request) {
	code, ok := c.sup.LastQR()
	if !ok {
		writeError(w, http.StatusNotFound, whatsapp.ErrNoQRAvailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"qr":    code,
		"state": c.sup.State(),
	})
}

func (c *StatusController) Connect(w http.ResponseWriter, r *http.Request) {
	if err := c.sup.Connect(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.sup.Status())
}

func (c *StatusController) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := c.sup.Disconnect(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.sup.Status())
}

func (c *StatusController) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := c.sup.Reconnect(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.sup.Status())
}

// Restart descarta o client e reconstrói do zero. É a saída manual do
// estado terminal auth_failed_max_retries.
func (c *StatusController) Restart(w http.ResponseWriter, r *http.Request) {
	if err := c.sup.Restart(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.sup.Status())
}

func (c *StatusController) Logout(w http.ResponseWriter, r *http.Request) {
	if err := c.sup.Logout(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, c.sup.Status())
}
