package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/pkg/eventlog"
)

type State string

const (
	StateDisconnected       State = "disconnected"
	StateQRPending          State = "qr_pending"
	StateAuthenticated      State = "authenticated"
	StateConnected          State = "connected"
	StateAuthFailed         State = "auth_failed"
	StateAuthFailedMaxRetry State = "auth_failed_max_retries"
	StateLoggedOut          State = "logged_out"
)

// IsTerminal marca estados que não agendam reconexão sozinhos; só uma
// operação manual (reconnect/restart) tira o supervisor deles.
func (s State) IsTerminal() bool {
	return s == StateAuthFailedMaxRetry || s == StateLoggedOut
}

const (
	defaultMaxRetries     = 3
	defaultAuthRetryDelay = 5 * time.Second
	defaultReconnectDelay = 10 * time.Second
)

// StatusSnapshot é o estado observável da conexão num instante.
type StatusSnapshot struct {
	State     State     `json:"state"`
	Ready     bool      `json:"ready"`
	JID       string    `json:"jid,omitempty"`
	PushName  string    `json:"pushName,omitempty"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusEmitter recebe cada transição de estado.
type StatusEmitter interface {
	Emit(topic string, payload any)
}

// MessageListener consome mensagens recebidas; ReceiptListener, os acks
// de entrega/leitura. O pipeline implementa os dois.
type MessageListener interface {
	HandleMessage(ctx context.Context, evt *events.Message)
}

type ReceiptListener interface {
	HandleReceipt(ctx context.Context, evt *events.Receipt)
}

// Supervisor governa o ciclo de vida da conexão única com o WhatsApp:
// disconnected -> qr_pending -> authenticated -> connected, com retry
// limitado em falha de autenticação (delay curto, client reconstruído)
// e em queda pós-ready (delay maior, mesmo client). Operações manuais
// zeram o contador de retries.
type Supervisor struct {
	mu             sync.Mutex
	factory        ClientFactory
	client         Client
	state          State
	ready          bool
	retries        int
	maxRetries     int
	authRetryDelay time.Duration
	reconnectDelay time.Duration
	lastQR         string
	jid            string
	pushName       string
	closed         bool

	messages MessageListener
	receipts ReceiptListener
	emitter  StatusEmitter
	rawLog   *eventlog.Writer
	log      waLog.Logger

	// after é time.AfterFunc, trocável em teste para não esperar delay real.
	after func(d time.Duration, f func()) *time.Timer
}

type SupervisorConfig struct {
	Factory        ClientFactory
	MaxRetries     int
	AuthRetryDelay time.Duration
	ReconnectDelay time.Duration
	Emitter        StatusEmitter
	RawEventLog    *eventlog.Writer
	Log            waLog.Logger
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	log := cfg.Log
	if log == nil {
		log = waLog.Noop
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	authDelay := cfg.AuthRetryDelay
	if authDelay <= 0 {
		authDelay = defaultAuthRetryDelay
	}
	reconnDelay := cfg.ReconnectDelay
	if reconnDelay <= 0 {
		reconnDelay = defaultReconnectDelay
	}
	return &Supervisor{
		factory:        cfg.Factory,
		state:          StateDisconnected,
		maxRetries:     maxRetries,
		authRetryDelay: authDelay,
		reconnectDelay: reconnDelay,
		emitter:        cfg.Emitter,
		rawLog:         cfg.RawEventLog,
		log:            log,
		after:          time.AfterFunc,
	}
}

// SetListeners pendura o pipeline no supervisor. Deve ser chamado antes
// do primeiro Connect.
func (s *Supervisor) SetListeners(messages MessageListener, receipts ReceiptListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = messages
	s.receipts = receipts
}

// Connect inicia a sessão, construindo o client se necessário. Por ser
// operação manual, zera o contador de retries.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()
	return s.connect(ctx)
}

func (s *Supervisor) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClientUnavailable
	}
	client := s.client
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		return nil
	}

	if client == nil {
		built, err := s.factory(ctx)
		if err != nil {
			return fmt.Errorf("build whatsapp client: %w", err)
		}
		built.AddEventHandler(s.handleEvent)
		s.mu.Lock()
		s.client = built
		s.mu.Unlock()
		client = built
	}

	if !client.HasSession() {
		// IMPORTANTE: pegar o QR channel ANTES de conectar, senão o
		// whatsmeow não emite os códigos.
		qrChan, err := client.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go s.watchQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (s *Supervisor) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			s.mu.Lock()
			s.lastQR = item.Code
			s.mu.Unlock()
			s.setState(StateQRPending)
			if ascii, err := RenderQRASCII(item.Code); err == nil {
				fmt.Print(ascii)
			} else {
				s.log.Warnf("falha ao renderizar QR: %v", err)
			}
		case "success":
			s.clearQR()
			s.setState(StateAuthenticated)
		case "timeout":
			s.clearQR()
			s.log.Warnf("QR expirou sem pareamento")
			s.setState(StateDisconnected)
		default:
			s.log.Debugf("evento de QR ignorado: %s", item.Event)
		}
	}
}

func (s *Supervisor) clearQR() {
	s.mu.Lock()
	s.lastQR = ""
	s.mu.Unlock()
}

func (s *Supervisor) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		s.mu.Lock()
		s.ready = true
		s.retries = 0
		if s.client != nil {
			if jid := s.client.SelfJID(); !jid.IsEmpty() {
				s.jid = jid.ToNonAD().String()
			}
			s.pushName = s.client.PushName()
		}
		s.mu.Unlock()
		s.setState(StateConnected)

	case *events.PairSuccess:
		s.log.Infof("pareado com sucesso: %s (%s)", e.ID, e.Platform)
		s.setState(StateAuthenticated)

	case *events.PairError:
		s.authFailure(fmt.Sprintf("pair error: %v", e.Error))

	case *events.ConnectFailure:
		s.authFailure(fmt.Sprintf("connect failure %v: %s", e.Reason, e.Message))

	case *events.LoggedOut:
		s.log.Warnf("sessão deslogada pelo telefone. Motivo: %s", e.Reason.String())
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
		s.setState(StateLoggedOut)

	case *events.StreamReplaced:
		// Outro dispositivo assumiu a sessão; reconectar ia brigar com ele.
		s.log.Warnf("stream substituído por outro dispositivo")
		s.mu.Lock()
		s.ready = false
		s.mu.Unlock()
		s.setState(StateDisconnected)

	case *events.Disconnected:
		s.handleDisconnected()

	case *events.Message:
		s.dispatchMessage(e)

	case *events.Receipt:
		s.dispatchReceipt(e)
	}
}

func (s *Supervisor) handleDisconnected() {
	s.mu.Lock()
	wasReady := s.ready
	s.ready = false
	state := s.state
	s.mu.Unlock()

	if state.IsTerminal() {
		return
	}
	s.setState(StateDisconnected)
	if !wasReady {
		// Queda antes do ready pertence ao fluxo de autenticação.
		return
	}
	s.log.Warnf("conexão caiu; reconectando em %s", s.reconnectDelay)
	s.scheduleRetry(s.reconnectDelay, false)
}

func (s *Supervisor) authFailure(reason string) {
	s.mu.Lock()
	s.ready = false
	s.retries++
	retries := s.retries
	maxRetries := s.maxRetries
	s.mu.Unlock()

	s.log.Errorf("falha de autenticação (%d/%d): %s", retries, maxRetries, reason)
	if retries >= maxRetries {
		s.setState(StateAuthFailedMaxRetry)
		s.log.Errorf("limite de tentativas atingido; use POST /restart após resolver")
		return
	}
	s.setState(StateAuthFailed)
	s.scheduleRetry(s.authRetryDelay, true)
}

// scheduleRetry agenda uma reconexão. rebuild derruba e recria o client
// (fluxo de auth); sem rebuild reconecta o client existente.
func (s *Supervisor) scheduleRetry(delay time.Duration, rebuild bool) {
	s.after(delay, func() {
		s.mu.Lock()
		if s.closed || s.state.IsTerminal() {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.retryConnect(rebuild)
	})
}

func (s *Supervisor) retryConnect(rebuild bool) {
	if rebuild {
		s.teardown()
	}
	err := s.connect(context.Background())
	if err == nil {
		return
	}

	s.mu.Lock()
	s.retries++
	retries := s.retries
	exhausted := retries >= s.maxRetries
	s.mu.Unlock()

	s.log.Errorf("tentativa de reconexão falhou (%d/%d): %v", retries, s.maxRetries, err)
	if exhausted {
		if rebuild {
			s.setState(StateAuthFailedMaxRetry)
		} else {
			s.log.Errorf("desistindo de reconectar; use POST /reconnect")
		}
		return
	}
	delay := s.reconnectDelay
	if rebuild {
		delay = s.authRetryDelay
	}
	s.scheduleRetry(delay, rebuild)
}

// teardown descarta o client atual; o próximo connect recria do zero.
func (s *Supervisor) teardown() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.lastQR = ""
	s.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

// Disconnect derruba a conexão sem descartar credenciais.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.retries = 0
	s.ready = false
	s.mu.Unlock()
	if client == nil {
		return ErrClientUnavailable
	}
	client.Disconnect()
	s.setState(StateDisconnected)
	return nil
}

// Reconnect derruba e reconecta preservando o client e a sessão.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.retries = 0
	s.ready = false
	client := s.client
	s.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	s.setState(StateDisconnected)
	return s.connect(ctx)
}

// Restart descarta o client e reconstrói tudo a partir do device store.
// É a saída manual dos estados terminais.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	s.retries = 0
	s.ready = false
	s.mu.Unlock()

	s.teardown()
	s.setState(StateDisconnected)
	return s.connect(ctx)
}

// Logout encerra a sessão no servidor e invalida as credenciais. O
// próximo connect vai exigir novo pareamento por QR.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrClientUnavailable
	}
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.mu.Lock()
	s.ready = false
	s.client = nil
	s.jid = ""
	s.pushName = ""
	s.mu.Unlock()
	s.setState(StateLoggedOut)
	return nil
}

// Close encerra o supervisor no shutdown do processo.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

func (s *Supervisor) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{
		State:     s.state,
		Ready:     s.ready,
		JID:       s.jid,
		PushName:  s.pushName,
		Retries:   s.retries,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastQR devolve o último código QR emitido, se ainda houver pareamento
// pendente.
func (s *Supervisor) LastQR() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastQR == "" {
		return "", false
	}
	return s.lastQR, true
}

// Client expõe o client corrente para envio e download de mídia. Pode
// ser nil antes do primeiro connect.
func (s *Supervisor) Client() Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Supervisor) SelfJID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jid
}

func (s *Supervisor) OwnPushName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushName
}

// setState registra a transição e publica o snapshot novo.
func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.log.Infof("conexão: %s -> %s", prev, next)
	}
	if s.emitter != nil {
		s.emitter.Emit("connection.status", s.Status())
	}
	if s.rawLog.Enabled() {
		s.rawLog.WriteAsync(s.Status())
	}
}

// dispatchMessage entrega o evento clonado ao pipeline. O clone protege
// contra reuso interno de buffers do whatsmeow; a entrega é síncrona
// porque o pipeline apenas enfileira, preservando a ordem de chegada.
func (s *Supervisor) dispatchMessage(evt *events.Message) {
	if s.rawLog.Enabled() {
		s.rawLog.WriteAsync(evt)
	}
	s.mu.Lock()
	listener := s.messages
	s.mu.Unlock()
	if listener == nil {
		return
	}
	dup := cloneMessageEvent(evt)
	if dup == nil {
		return
	}
	listener.HandleMessage(context.Background(), dup)
}

func (s *Supervisor) dispatchReceipt(evt *events.Receipt) {
	s.mu.Lock()
	listener := s.receipts
	s.mu.Unlock()
	if listener == nil {
		return
	}
	dup := *evt
	listener.HandleReceipt(context.Background(), &dup)
}

func cloneMessageEvent(evt *events.Message) *events.Message {
	if evt == nil {
		return nil
	}
	dup := *evt
	if evt.Message != nil {
		if msg, ok := proto.Clone(evt.Message).(*waE2E.Message); ok {
			dup.Message = msg
		}
	}
	if evt.RawMessage != nil {
		if msg, ok := proto.Clone(evt.RawMessage).(*waE2E.Message); ok {
			dup.RawMessage = msg
		}
	}
	if evt.SourceWebMsg != nil {
		if raw, ok := proto.Clone(evt.SourceWebMsg).(*waWeb.WebMessageInfo); ok {
			dup.SourceWebMsg = raw
		}
	}
	return &dup
}
