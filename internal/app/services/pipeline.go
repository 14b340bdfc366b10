package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/repositories"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/analytics"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/metrics"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/whatsapp"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/storage"
)

const (
	defaultQueueSize     = 256
	defaultFlushInterval = 5 * time.Minute
	defaultPurgeInterval = 10 * time.Minute
)

// Emitter publica eventos de domínio para os assinantes (websocket,
// webhook). Implementações não podem bloquear o chamador.
type Emitter interface {
	Emit(topic string, payload any)
}

// EmitterFunc adapta uma função ao contrato de Emitter.
type EmitterFunc func(topic string, payload any)

func (f EmitterFunc) Emit(topic string, payload any) { f(topic, payload) }

// MultiEmitter entrega o mesmo evento a vários assinantes, na ordem.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(topic string, payload any) {
	for _, e := range m {
		if e != nil {
			e.Emit(topic, payload)
		}
	}
}

type queueItem struct {
	msg     *events.Message
	receipt *events.Receipt
}

// Pipeline é o orquestrador: recebe os eventos do supervisor numa fila
// limitada e processa tudo num único worker, então a ordem de chegada
// vira ordem de processamento sem lock nenhum no caminho quente.
type Pipeline struct {
	queue chan queueItem

	sup      *whatsapp.Supervisor
	sender   MessageService
	gate     AutoReplyService
	limiter  *RateLimiter
	stats    AnalyticsService
	settings SettingsService
	messages repositories.MessageRepository
	replies  repositories.AutoReplyRepository
	snaps    repositories.AnalyticsRepository
	media    storage.Service
	emitter  Emitter
	metrics  *metrics.Metrics
	log      waLog.Logger

	flushInterval time.Duration
	purgeInterval time.Duration
	done          chan struct{}
}

type PipelineConfig struct {
	Supervisor  *whatsapp.Supervisor
	Sender      MessageService
	Gate        AutoReplyService
	Limiter     *RateLimiter
	Analytics   AnalyticsService
	Settings    SettingsService
	Messages    repositories.MessageRepository
	AutoReplies repositories.AutoReplyRepository
	Snapshots   repositories.AnalyticsRepository
	Media       storage.Service
	Emitter     Emitter
	Metrics     *metrics.Metrics
	Log         waLog.Logger

	QueueSize     int
	FlushInterval time.Duration
	PurgeInterval time.Duration
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = defaultPurgeInterval
	}
	if cfg.Log == nil {
		cfg.Log = waLog.Noop
	}
	return &Pipeline{
		queue:         make(chan queueItem, cfg.QueueSize),
		sup:           cfg.Supervisor,
		sender:        cfg.Sender,
		gate:          cfg.Gate,
		limiter:       cfg.Limiter,
		stats:         cfg.Analytics,
		settings:      cfg.Settings,
		messages:      cfg.Messages,
		replies:       cfg.AutoReplies,
		snaps:         cfg.Snapshots,
		media:         cfg.Media,
		emitter:       cfg.Emitter,
		metrics:       cfg.Metrics,
		log:           cfg.Log,
		flushInterval: cfg.FlushInterval,
		purgeInterval: cfg.PurgeInterval,
		done:          make(chan struct{}),
	}
}

// Run consome a fila até o contexto encerrar. No desligamento drena o
// que sobrou e persiste um último snapshot.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	flush := time.NewTicker(p.flushInterval)
	defer flush.Stop()
	purge := time.NewTicker(p.purgeInterval)
	defer purge.Stop()

	p.log.Infof("pipeline iniciado (fila=%d, flush=%s)", cap(p.queue), p.flushInterval)
	for {
		select {
		case item := <-p.queue:
			p.process(ctx, item)
		case <-flush.C:
			p.flush(ctx)
		case <-purge.C:
			p.limiter.PurgeStale()
		case <-ctx.Done():
			p.drain()
			p.flush(context.Background())
			p.log.Infof("pipeline encerrado")
			return
		}
	}
}

// Done fecha quando o worker terminou o desligamento.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// HandleMessage implementa whatsapp.MessageListener.
func (p *Pipeline) HandleMessage(ctx context.Context, evt *events.Message) {
	p.enqueue(queueItem{msg: evt})
}

// HandleReceipt implementa whatsapp.ReceiptListener.
func (p *Pipeline) HandleReceipt(ctx context.Context, evt *events.Receipt) {
	p.enqueue(queueItem{receipt: evt})
}

// enqueue nunca bloqueia o goroutine de eventos do transporte: com a
// fila cheia o evento é descartado e contado.
func (p *Pipeline) enqueue(item queueItem) {
	select {
	case p.queue <- item:
	default:
		if p.metrics != nil {
			p.metrics.EventsDropped.Inc()
		}
		p.log.Warnf("fila do pipeline cheia; evento descartado")
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case item := <-p.queue:
			p.process(context.Background(), item)
		default:
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, item queueItem) {
	switch {
	case item.msg != nil:
		p.processMessage(ctx, item.msg)
	case item.receipt != nil:
		p.processReceipt(ctx, item.receipt)
	}
}

func (p *Pipeline) processMessage(ctx context.Context, evt *events.Message) {
	evt.UnwrapRaw()
	if evt.Message == nil {
		if evt.RawMessage == nil {
			return
		}
		evt.Message = evt.RawMessage
	}

	msg := p.toDomain(evt)
	if url := p.archiveMedia(ctx, evt); url != "" {
		msg.MediaURL = url
	}

	if err := p.messages.Save(ctx, &msg); err != nil {
		p.log.Errorf("persistência da mensagem %s falhou: %v", msg.ID, err)
	}
	p.stats.Record(msg)
	if p.metrics != nil && msg.Direction == message.DirectionIn {
		p.metrics.MessagesReceived.Inc()
	}
	p.emit("message.received", msg)

	if !msg.FromMe && msg.Direction == message.DirectionIn {
		p.maybeAutoReply(ctx, msg)
	}
}

// toDomain traduz o evento do transporte para o modelo próprio. Mensagem
// nossa sincronizada de outro aparelho entra como saída já enviada.
func (p *Pipeline) toDomain(evt *events.Message) message.Message {
	info := evt.Info
	ts := info.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	msg := message.Message{
		ID:         string(info.ID),
		ChatID:     info.Chat.String(),
		Sender:     info.Sender.ToNonAD().String(),
		SenderName: info.PushName,
		Recipient:  p.sup.SelfJID(),
		Content:    extractText(evt.Message),
		Kind:       detectKind(evt.Message),
		Direction:  message.DirectionIn,
		Status:     message.StatusDelivered,
		Timestamp:  ts,
		IsGroup:    info.IsGroup,
		FromMe:     info.IsFromMe,
		UpdatedAt:  ts,
	}
	if info.IsFromMe {
		msg.Direction = message.DirectionOut
		msg.Status = message.StatusSent
		msg.Sender = p.sup.SelfJID()
		msg.Recipient = info.Chat.ToNonAD().String()
	}
	return msg
}

// extractText pega o texto renderizável da mensagem: conversation,
// extended text ou legenda de mídia.
func extractText(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	default:
		return ""
	}
}

func detectKind(msg *waE2E.Message) message.Kind {
	if msg == nil {
		return message.KindUnknown
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return message.KindText
	case msg.GetImageMessage() != nil:
		return message.KindImage
	case msg.GetVideoMessage() != nil:
		return message.KindVideo
	case msg.GetAudioMessage() != nil:
		return message.KindAudio
	case msg.GetDocumentMessage() != nil:
		return message.KindDocument
	case msg.GetStickerMessage() != nil:
		return message.KindSticker
	case msg.GetLocationMessage() != nil || msg.GetLiveLocationMessage() != nil:
		return message.KindLocation
	case msg.GetContactMessage() != nil:
		return message.KindContact
	case msg.GetReactionMessage() != nil:
		return message.KindReaction
	default:
		return message.KindUnknown
	}
}

// maybeAutoReply roda o gate e, quando a decisão é responder, envia e
// registra o resultado. Toda tentativa de envio gera um AutoReplyRecord;
// falha de transporte dispara uma desculpa genérica, sem retry.
func (p *Pipeline) maybeAutoReply(ctx context.Context, msg message.Message) {
	cfg := p.settings.Current()
	decision, ok := p.gate.Decide(ctx, msg, cfg)
	if !ok {
		return
	}

	reply, sendErr := p.sender.SendText(ctx, msg.ChatID, decision.Text)
	record := message.AutoReplyRecord{
		ID:             uuid.New().String(),
		Sender:         msg.Sender,
		SenderName:     msg.SenderName,
		RequestText:    msg.Content,
		ResponseText:   decision.Text,
		ResponseType:   decision.Type,
		IsGroup:        msg.IsGroup,
		IsWorkingHours: decision.WorkingHours,
		Timestamp:      time.Now().UTC(),
	}
	if err := p.replies.Save(ctx, &record); err != nil {
		p.log.Errorf("persistência da auto-resposta falhou: %v", err)
	}
	p.emit("autoreply.sent", record)
	if p.metrics != nil {
		p.metrics.AutoReplies.WithLabelValues(string(decision.Type)).Inc()
	}

	p.recordOutbound(ctx, reply, sendErr)
	if sendErr == nil {
		return
	}

	apology := cfg.LLM.FallbackMessage
	if apology == "" {
		apology = cfg.DefaultMessage
	}
	if apology == "" || apology == decision.Text {
		return
	}
	retry, err := p.sender.SendText(ctx, msg.ChatID, apology)
	if err != nil {
		p.log.Warnf("mensagem de desculpa para %s também falhou: %v", msg.ChatID, err)
		return
	}
	p.recordOutbound(ctx, retry, nil)
}

// SendText cobre o envio manual via API: mesmo transporte, mesma
// contabilidade do fluxo automático.
func (p *Pipeline) SendText(ctx context.Context, to, text string) (message.Message, error) {
	out, err := p.sender.SendText(ctx, to, text)
	if out.ID != "" {
		p.recordOutbound(ctx, out, err)
	}
	return out, err
}

func (p *Pipeline) recordOutbound(ctx context.Context, out message.Message, sendErr error) {
	if out.ID == "" {
		return
	}
	if err := p.messages.Save(ctx, &out); err != nil {
		p.log.Errorf("persistência da mensagem %s falhou: %v", out.ID, err)
	}
	p.stats.Record(out)
	if sendErr != nil {
		if p.metrics != nil {
			p.metrics.SendFailures.Inc()
		}
		p.stats.RecordError(sendErr.Error(), out.ID, out.Recipient)
		p.emit("message.failed", out)
		return
	}
	if p.metrics != nil {
		p.metrics.MessagesSent.Inc()
	}
	p.emit("message.sent", out)
}

func (p *Pipeline) processReceipt(ctx context.Context, evt *events.Receipt) {
	level, ok := ackLevelFor(evt.Type)
	if !ok {
		return
	}
	status := level.Status()
	if status == "" {
		return
	}
	at := evt.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	for _, id := range evt.MessageIDs {
		err := p.messages.UpdateStatus(ctx, string(id), status, at)
		if err != nil {
			// Recibo de mensagem que nunca passou por aqui (histórico
			// antigo, outro aparelho); não é falha.
			if !errors.Is(err, repositories.ErrMessageNotFound) {
				p.log.Warnf("atualização de status da mensagem %s falhou: %v", id, err)
			}
			continue
		}
		p.emit("message.status", map[string]any{
			"id":        string(id),
			"status":    status,
			"ack":       int(level),
			"timestamp": at,
		})
	}
}

// ackLevelFor traduz o tipo de recibo do transporte para a escada de
// acks. Tipos desconhecidos são ignorados sem rebaixar status.
func ackLevelFor(t types.ReceiptType) (message.AckLevel, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return message.AckDevice, true
	case types.ReceiptTypeRead:
		return message.AckRead, true
	case types.ReceiptTypePlayed:
		return message.AckPlayed, true
	default:
		return 0, false
	}
}

// flush persiste o snapshot corrente e avisa os assinantes.
func (p *Pipeline) flush(ctx context.Context) {
	snap := p.stats.Snapshot()
	if msgs, err := p.messages.Since(ctx, snap.CapturedAt.Add(-24*time.Hour)); err == nil {
		snap.ResponseTimes = p.stats.ComputeResponseTimes(msgs)
	}
	if p.snaps != nil {
		if err := p.snaps.SaveSnapshot(ctx, snap); err != nil {
			p.log.Errorf("persistência do snapshot falhou: %v", err)
		}
	}
	p.emit("analytics.updated", snap)
}

// CurrentSnapshot monta o snapshot com os tempos de resposta da última
// janela de 24h. É o payload do GET /analytics.
func (p *Pipeline) CurrentSnapshot(ctx context.Context) analytics.Snapshot {
	snap := p.stats.Snapshot()
	if msgs, err := p.messages.Since(ctx, snap.CapturedAt.Add(-24*time.Hour)); err == nil {
		snap.ResponseTimes = p.stats.ComputeResponseTimes(msgs)
	}
	return snap
}

// ResponseTimesWindow calcula os tempos de resposta de uma janela
// arbitrária em horas.
func (p *Pipeline) ResponseTimesWindow(ctx context.Context, hours int) (analytics.ResponseTimeStats, error) {
	if hours <= 0 {
		hours = 24
	}
	msgs, err := p.messages.Since(ctx, time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return analytics.ResponseTimeStats{}, err
	}
	return p.stats.ComputeResponseTimes(msgs), nil
}

// ResetAnalytics zera o agregador e o limiter e persiste o snapshot
// vazio resultante.
func (p *Pipeline) ResetAnalytics(ctx context.Context) analytics.Snapshot {
	p.stats.Reset()
	p.limiter.Reset()
	p.flush(ctx)
	return p.stats.Snapshot()
}

func (p *Pipeline) emit(topic string, payload any) {
	if p.emitter != nil {
		p.emitter.Emit(topic, payload)
	}
}

// archiveMedia baixa a mídia da mensagem e arquiva no object storage,
// devolvendo a URL final. Sem storage configurado vira no-op.
func (p *Pipeline) archiveMedia(ctx context.Context, evt *events.Message) string {
	if p.media == nil || evt.Message == nil {
		return ""
	}
	client := p.sup.Client()
	if client == nil {
		return ""
	}

	blob, mimeType, fallbackExt, fileName := mediaRef(evt.Message)
	if blob == nil {
		return ""
	}

	data, err := client.Download(ctx, blob)
	if err != nil {
		p.log.Warnf("download da mídia da mensagem %s falhou: %v", evt.Info.ID, err)
		p.stats.RecordError(fmt.Sprintf("media download failed: %v", err), string(evt.Info.ID), evt.Info.Sender.ToNonAD().String())
		return ""
	}
	if len(data) == 0 {
		return ""
	}

	url, err := p.putMedia(ctx, evt, data, mimeType, fallbackExt, fileName)
	if err != nil {
		p.log.Errorf("upload da mídia da mensagem %s falhou: %v", evt.Info.ID, err)
		p.stats.RecordError(fmt.Sprintf("media upload failed: %v", err), string(evt.Info.ID), evt.Info.Sender.ToNonAD().String())
		return ""
	}
	return url
}

func mediaRef(msg *waE2E.Message) (blob whatsmeow.DownloadableMessage, mimeType, fallbackExt, fileName string) {
	switch {
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		return m, m.GetMimetype(), ".jpg", ""
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		return m, m.GetMimetype(), ".mp4", ""
	case msg.GetAudioMessage() != nil:
		m := msg.GetAudioMessage()
		return m, m.GetMimetype(), ".ogg", ""
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		return m, m.GetMimetype(), ".bin", m.GetFileName()
	case msg.GetStickerMessage() != nil:
		m := msg.GetStickerMessage()
		return m, m.GetMimetype(), ".webp", ""
	default:
		return nil, "", "", ""
	}
}

func (p *Pipeline) putMedia(ctx context.Context, evt *events.Message, data []byte, mimeType, fallbackExt, fileName string) (string, error) {
	contentType := normalizeContentType(mimeType, data)

	ext := ""
	if fileName != "" {
		if idx := strings.LastIndex(fileName, "."); idx != -1 {
			ext = fileName[idx:]
		}
	}
	if ext == "" && contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	if ext == "" {
		ext = fallbackExt
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	cleanChat := sanitizeSegment(evt.Info.Chat.String())
	if cleanChat == "" {
		cleanChat = "desconhecido"
	}
	cleanID := sanitizeSegment(string(evt.Info.ID))
	if cleanID == "" {
		cleanID = fmt.Sprintf("%d", time.Now().UnixNano())
	}

	name := sanitizeFileName(fileName)
	if name == "" {
		name = cleanID + ext
	} else if ext != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}

	ts := evt.Info.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	key := fmt.Sprintf("chats/%s/%s/%s", cleanChat, ts.UTC().Format("2006/01/02"), name)

	return p.media.PutObject(ctx, storage.UploadInput{
		Key:         key,
		ContentType: contentType,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
	})
}

func normalizeContentType(raw string, data []byte) string {
	v := strings.TrimSpace(raw)
	if idx := strings.Index(v, ";"); idx != -1 {
		v = strings.TrimSpace(v[:idx])
	}
	if v == "" {
		v = http.DetectContentType(data)
	}
	return v
}

func sanitizeSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, " ", "_")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, value)
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, " ", "_")
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, name)
	clean = strings.Trim(clean, "._")
	return clean
}

var (
	_ whatsapp.MessageListener = (*Pipeline)(nil)
	_ whatsapp.ReceiptListener = (*Pipeline)(nil)
)
