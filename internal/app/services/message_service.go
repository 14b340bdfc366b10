package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/whatsapp"
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrEmptyText        = errors.New("empty message text")
)

// MessageService envia texto pela conta conectada e devolve o registro
// de domínio correspondente. Em falha o registro volta com status
// failed e ID sintético, pronto para persistir mesmo assim.
type MessageService interface {
	SendText(ctx context.Context, to, text string) (message.Message, error)
}

type messageService struct {
	sup      *whatsapp.Supervisor
	previews bool
	web      *http.Client
	log      waLog.Logger
}

// NewMessageService monta o sender. Com previews ligado, texto contendo
// URL sai como extended text com título/descrição/thumbnail da página.
func NewMessageService(sup *whatsapp.Supervisor, previews bool, log waLog.Logger) MessageService {
	if log == nil {
		log = waLog.Noop
	}
	return &messageService{
		sup:      sup,
		previews: previews,
		web:      &http.Client{},
		log:      log,
	}
}

func (s *messageService) SendText(ctx context.Context, to, text string) (message.Message, error) {
	if strings.TrimSpace(text) == "" {
		return message.Message{}, ErrEmptyText
	}
	jid, err := parseDestinationJID(to)
	if err != nil {
		return message.Message{}, err
	}

	now := time.Now().UTC()
	out := message.Message{
		ID:         uuid.NewString(),
		ChatID:     jid.String(),
		Sender:     s.sup.SelfJID(),
		SenderName: s.sup.OwnPushName(),
		Recipient:  jid.ToNonAD().String(),
		Content:    text,
		Kind:       message.KindText,
		Direction:  message.DirectionOut,
		Status:     message.StatusPending,
		Timestamp:  now,
		IsGroup:    jid.Server == types.GroupServer,
		FromMe:     true,
		UpdatedAt:  now,
	}

	client := s.sup.Client()
	if client == nil {
		out.Status = message.StatusFailed
		return out, whatsapp.ErrClientUnavailable
	}
	if !client.IsConnected() {
		out.Status = message.StatusFailed
		return out, whatsapp.ErrNotConnected
	}

	resp, err := client.SendMessage(ctx, jid, s.buildPayload(ctx, text))
	if err != nil {
		out.Status = message.StatusFailed
		out.UpdatedAt = time.Now().UTC()
		return out, fmt.Errorf("send text to %s: %w", jid, err)
	}

	out.ID = string(resp.ID)
	out.Timestamp = resp.Timestamp
	s.log.Debugf("texto enviado para %s (id=%s)", jid, out.ID)
	return out, nil
}

// buildPayload devolve Conversation simples, ou extended text com link
// preview quando o texto contém URL e a página rende metadados. Falha
// na busca do preview nunca bloqueia o envio.
func (s *messageService) buildPayload(ctx context.Context, text string) *waE2E.Message {
	plain := &waE2E.Message{Conversation: proto.String(text)}
	if !s.previews {
		return plain
	}
	url := firstURL(text)
	if url == "" {
		return plain
	}

	preview, err := fetchLinkPreview(ctx, s.web, url)
	if err != nil {
		s.log.Debugf("preview de %s indisponível: %v", url, err)
		return plain
	}

	ext := &waE2E.ExtendedTextMessage{
		Text:         proto.String(text),
		MatchedText:  proto.String(url),
		CanonicalURL: proto.String(preview.URL),
	}
	if preview.Title != "" {
		ext.Title = proto.String(preview.Title)
	}
	if preview.Description != "" {
		ext.Description = proto.String(preview.Description)
	}
	if len(preview.Thumbnail) > 0 {
		ext.JPEGThumbnail = preview.Thumbnail
	}
	return &waE2E.Message{ExtendedTextMessage: ext}
}

func parseDestinationJID(raw string) (types.JID, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return types.JID{}, ErrInvalidRecipient
	}
	if strings.Contains(cleaned, "@") {
		jid, err := types.ParseJID(cleaned)
		if err != nil {
			return types.JID{}, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
		}
		return jid, nil
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, cleaned)
	if digits == "" {
		return types.JID{}, ErrInvalidRecipient
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
