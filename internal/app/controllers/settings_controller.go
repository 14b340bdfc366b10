package controllers

import (
	"errors"
	"net/http"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/services"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
)

type SettingsController struct {
	service services.SettingsService
}

func NewSettingsController(s services.SettingsService) *SettingsController {
	return &SettingsController{service: s}
}

func (c *SettingsController) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.service.Current())
}

// Update aplica um patch parcial. Campos ausentes mantêm o valor atual;
// a resposta é o bundle completo resultante (sem a chave da API).
func (c *SettingsController) Update(w http.ResponseWriter, r *http.Request) {
	var in settings.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	next, err := c.service.Update(r.Context(), in)
	if err != nil {
		writeError(w, mapSettingsStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func mapSettingsStatus(err error) int {
	switch {
	case errors.Is(err, settings.ErrInvalidWindow),
		errors.Is(err, settings.ErrInvalidRateLimit),
		errors.Is(err, settings.ErrInvalidTemperature),
		errors.Is(err, settings.ErrInvalidTimeout),
		errors.Is(err, settings.ErrUnknownProvider):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
