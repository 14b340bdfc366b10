package controllers

import (
	"net/http"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/repositories"
)

type AutoReplyController struct {
	replies repositories.AutoReplyRepository
}

func NewAutoReplyController(replies repositories.AutoReplyRepository) *AutoReplyController {
	return &AutoReplyController{replies: replies}
}

// List devolve as respostas automáticas emitidas, mais recentes primeiro.
func (c *AutoReplyController) List(w http.ResponseWriter, r *http.Request) {
	records, err := c.replies.List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"autoReplies": records,
		"count":       len(records),
	})
}
