package controllers

import (
	"errors"
	"net/http"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/repositories"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/services"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/whatsapp"
)

type MessageController struct {
	pipeline *services.Pipeline
	messages repositories.MessageRepository
}

func NewMessageController(pipeline *services.Pipeline, messages repositories.MessageRepository) *MessageController {
	return &MessageController{pipeline: pipeline, messages: messages}
}

// Send envia texto pelo mesmo caminho do fluxo automático, então a
// mensagem aparece no histórico e nas métricas como qualquer outra.
func (c *MessageController) Send(w http.ResponseWriter, r *http.Request) {
	var in message.SendTextInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := c.pipeline.SendText(r.Context(), in.To, in.Text)
	if err != nil {
		writeError(w, mapMessageStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// List devolve o histórico, mais recentes primeiro. Filtros: chat,
// direction, limit, offset.
func (c *MessageController) List(w http.ResponseWriter, r *http.Request) {
	query := repositories.MessageQuery{
		Chat:      r.URL.Query().Get("chat"),
		Direction: message.Direction(r.URL.Query().Get("direction")),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}

	msgs, err := c.messages.List(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}

func mapMessageStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRecipient), errors.Is(err, services.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, whatsapp.ErrClientUnavailable), errors.Is(err, whatsapp.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, repositories.ErrMessageNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
