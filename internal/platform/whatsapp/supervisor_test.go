package whatsapp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type fakeClient struct {
	mu              sync.Mutex
	connected       bool
	session         bool
	connectErr      error
	handler         whatsmeow.EventHandler
	connects        int
	disconnects     int
	logouts         int
	qr              chan whatsmeow.QRChannelItem
	qrFetched       bool
	qrBeforeConnect bool
}

func (c *fakeClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	c.qrBeforeConnect = c.qrFetched
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	c.connected = false
	c.session = false
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsLoggedIn() bool { return c.HasSession() }

func (c *fakeClient) HasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *fakeClient) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qrFetched = true
	if c.qr == nil {
		c.qr = make(chan whatsmeow.QRChannelItem, 4)
	}
	return c.qr, nil
}

func (c *fakeClient) AddEventHandler(h whatsmeow.EventHandler) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return 1
}

func (c *fakeClient) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (whatsmeow.SendResponse, error) {
	return whatsmeow.SendResponse{}, errors.New("not implemented")
}

func (c *fakeClient) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeClient) SelfJID() types.JID {
	return types.NewJID("5511888888888", types.DefaultUserServer)
}

func (c *fakeClient) PushName() string { return "Bot de Teste" }

type statusCapture struct {
	mu        sync.Mutex
	snapshots []StatusSnapshot
}

func (c *statusCapture) Emit(topic string, payload any) {
	snap, ok := payload.(StatusSnapshot)
	if !ok {
		return
	}
	c.mu.Lock()
	c.snapshots = append(c.snapshots, snap)
	c.mu.Unlock()
}

func (c *statusCapture) states() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]State, len(c.snapshots))
	for i, s := range c.snapshots {
		out[i] = s.State
	}
	return out
}

// supervisorHarness troca o agendador por uma lista inspecionável, para
// os testes dispararem os retries na mão em vez de esperar delay real.
type supervisorHarness struct {
	sup       *Supervisor
	client    *fakeClient
	status    *statusCapture
	mu        sync.Mutex
	scheduled []func()
	delays    []time.Duration
	built     int
	buildErr  error
}

func newHarness(session bool) *supervisorHarness {
	h := &supervisorHarness{
		client: &fakeClient{session: session},
		status: &statusCapture{},
	}
	h.sup = NewSupervisor(SupervisorConfig{
		Factory: func(ctx context.Context) (Client, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.buildErr != nil {
				return nil, h.buildErr
			}
			h.built++
			return h.client, nil
		},
		MaxRetries: 3,
		Emitter:    h.status,
	})
	h.sup.after = func(d time.Duration, f func()) *time.Timer {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.scheduled = append(h.scheduled, f)
		h.delays = append(h.delays, d)
		return nil
	}
	return h
}

func (h *supervisorHarness) runScheduled(t *testing.T, idx int) {
	t.Helper()
	h.mu.Lock()
	if idx >= len(h.scheduled) {
		h.mu.Unlock()
		t.Fatalf("no retry scheduled at index %d", idx)
	}
	f := h.scheduled[idx]
	h.mu.Unlock()
	f()
}

func (h *supervisorHarness) scheduledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scheduled)
}

func TestSupervisorConnectHappyPath(t *testing.T) {
	h := newHarness(true)

	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if h.built != 1 || h.client.connects != 1 {
		t.Fatalf("expected one build and one connect, got %d/%d", h.built, h.client.connects)
	}
	if h.client.handler == nil {
		t.Fatalf("event handler not registered")
	}

	h.client.handler(&events.Connected{})

	st := h.sup.Status()
	if st.State != StateConnected || !st.Ready {
		t.Fatalf("expected ready connected, got %+v", st)
	}
	if st.JID != "5511888888888@s.whatsapp.net" || st.PushName != "Bot de Teste" {
		t.Fatalf("identity not cached: %+v", st)
	}
	if !h.sup.Ready() {
		t.Fatalf("Ready() should be true after connected event")
	}
}

func TestSupervisorQRChannelFetchedBeforeConnect(t *testing.T) {
	h := newHarness(false)

	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !h.client.qrBeforeConnect {
		t.Fatalf("qr channel must be requested before the transport connect")
	}
	close(h.client.qr)
}

func TestSupervisorAuthRetryExhaustion(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	// Primeira falha de autenticação: agenda retry com client reconstruído.
	h.client.handler(&events.ConnectFailure{})
	if h.sup.State() != StateAuthFailed {
		t.Fatalf("expected auth_failed, got %s", h.sup.State())
	}
	if h.scheduledCount() != 1 {
		t.Fatalf("expected one scheduled retry, got %d", h.scheduledCount())
	}

	// As tentativas seguintes nem conseguem construir o client.
	h.mu.Lock()
	h.buildErr = errors.New("device store indisponível")
	h.mu.Unlock()

	h.runScheduled(t, 0)
	if h.sup.Status().Retries != 2 {
		t.Fatalf("expected 2 retries, got %d", h.sup.Status().Retries)
	}
	if h.scheduledCount() != 2 {
		t.Fatalf("expected second retry scheduled, got %d", h.scheduledCount())
	}

	h.runScheduled(t, 1)
	if h.sup.State() != StateAuthFailedMaxRetry {
		t.Fatalf("expected terminal state after max retries, got %s", h.sup.State())
	}
	if h.scheduledCount() != 2 {
		t.Fatalf("terminal state must not schedule more retries, got %d", h.scheduledCount())
	}

	// Timer atrasado disparando depois do estado terminal é ignorado.
	h.runScheduled(t, 1)
	if h.sup.State() != StateAuthFailedMaxRetry {
		t.Fatalf("stale retry changed state to %s", h.sup.State())
	}
}

func TestSupervisorManualRestartLeavesTerminalState(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	h.client.handler(&events.ConnectFailure{})
	h.client.handler(&events.ConnectFailure{})
	h.client.handler(&events.ConnectFailure{})
	if h.sup.State() != StateAuthFailedMaxRetry {
		t.Fatalf("expected terminal state, got %s", h.sup.State())
	}

	if err := h.sup.Restart(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if h.sup.State().IsTerminal() {
		t.Fatalf("restart should leave terminal state, got %s", h.sup.State())
	}
	if h.sup.Status().Retries != 0 {
		t.Fatalf("restart should reset retries, got %d", h.sup.Status().Retries)
	}
	if h.built != 2 {
		t.Fatalf("restart should rebuild the client, got %d builds", h.built)
	}
}

func TestSupervisorReconnectsAfterDrop(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	h.client.handler(&events.Connected{})

	// O transporte caiu sozinho depois do ready.
	h.client.mu.Lock()
	h.client.connected = false
	h.client.mu.Unlock()
	h.client.handler(&events.Disconnected{})

	if h.sup.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.sup.State())
	}
	if h.scheduledCount() != 1 {
		t.Fatalf("expected reconnect scheduled, got %d", h.scheduledCount())
	}
	if h.delays[0] != defaultReconnectDelay {
		t.Fatalf("expected reconnect delay %s, got %s", defaultReconnectDelay, h.delays[0])
	}

	h.runScheduled(t, 0)
	if h.client.connects != 2 {
		t.Fatalf("expected reconnect on same client, got %d connects", h.client.connects)
	}
	if h.built != 1 {
		t.Fatalf("post-ready reconnect must not rebuild the client, got %d builds", h.built)
	}
}

func TestSupervisorDropBeforeReadyDoesNotRetry(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	h.client.handler(&events.Disconnected{})

	if h.sup.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.sup.State())
	}
	if h.scheduledCount() != 0 {
		t.Fatalf("pre-ready drop belongs to the auth flow, got %d retries", h.scheduledCount())
	}
}

func TestSupervisorLoggedOutIsTerminal(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	h.client.handler(&events.Connected{})
	h.client.handler(&events.LoggedOut{})

	if h.sup.State() != StateLoggedOut || !h.sup.State().IsTerminal() {
		t.Fatalf("expected terminal logged_out, got %s", h.sup.State())
	}

	h.client.handler(&events.Disconnected{})
	if h.scheduledCount() != 0 {
		t.Fatalf("logged_out must not reconnect, got %d retries", h.scheduledCount())
	}
}

func TestSupervisorStreamReplacedStaysQuiet(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	h.client.handler(&events.Connected{})
	h.client.handler(&events.StreamReplaced{})

	if h.sup.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.sup.State())
	}
	if h.sup.Ready() {
		t.Fatalf("replaced stream should clear ready")
	}
	if h.scheduledCount() != 0 {
		t.Fatalf("replaced stream must not fight the other device, got %d retries", h.scheduledCount())
	}
}

func TestSupervisorManualDisconnect(t *testing.T) {
	h := newHarness(true)

	if err := h.sup.Disconnect(); !errors.Is(err, ErrClientUnavailable) {
		t.Fatalf("expected ErrClientUnavailable without client, got %v", err)
	}

	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := h.sup.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if h.client.disconnects != 1 || h.sup.State() != StateDisconnected {
		t.Fatalf("unexpected state after disconnect: %d/%s", h.client.disconnects, h.sup.State())
	}
	if h.scheduledCount() != 0 {
		t.Fatalf("manual disconnect must not schedule retries")
	}
}

func TestSupervisorLogout(t *testing.T) {
	h := newHarness(true)

	if err := h.sup.Logout(context.Background()); !errors.Is(err, ErrClientUnavailable) {
		t.Fatalf("expected ErrClientUnavailable without client, got %v", err)
	}

	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	h.client.handler(&events.Connected{})

	if err := h.sup.Logout(context.Background()); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if h.client.logouts != 1 {
		t.Fatalf("expected client logout, got %d", h.client.logouts)
	}
	st := h.sup.Status()
	if st.State != StateLoggedOut || st.Ready || st.JID != "" {
		t.Fatalf("expected cleared logged_out status, got %+v", st)
	}
	if h.sup.Client() != nil {
		t.Fatalf("logout should discard the client")
	}
}

func TestSupervisorClosedRefusesConnect(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	h.sup.Close()
	if h.client.disconnects != 1 {
		t.Fatalf("close should drop the transport, got %d", h.client.disconnects)
	}
	if err := h.sup.Connect(context.Background()); !errors.Is(err, ErrClientUnavailable) {
		t.Fatalf("expected ErrClientUnavailable after close, got %v", err)
	}
}

func TestSupervisorWatchQRTransitions(t *testing.T) {
	h := newHarness(false)

	ch := make(chan whatsmeow.QRChannelItem, 2)
	ch <- whatsmeow.QRChannelItem{Event: "success"}
	close(ch)
	h.sup.watchQR(ch)
	if h.sup.State() != StateAuthenticated {
		t.Fatalf("expected authenticated after pairing, got %s", h.sup.State())
	}

	h.sup.mu.Lock()
	h.sup.lastQR = "codigo-antigo"
	h.sup.mu.Unlock()

	ch = make(chan whatsmeow.QRChannelItem, 2)
	ch <- whatsmeow.QRChannelItem{Event: "timeout"}
	close(ch)
	h.sup.watchQR(ch)
	if h.sup.State() != StateDisconnected {
		t.Fatalf("expected disconnected after qr timeout, got %s", h.sup.State())
	}
	if _, ok := h.sup.LastQR(); ok {
		t.Fatalf("timeout should clear the pending code")
	}
}

func TestSupervisorLastQR(t *testing.T) {
	h := newHarness(false)

	if _, ok := h.sup.LastQR(); ok {
		t.Fatalf("expected no pending code")
	}
	h.sup.mu.Lock()
	h.sup.lastQR = "2@abcdef"
	h.sup.mu.Unlock()
	if code, ok := h.sup.LastQR(); !ok || code != "2@abcdef" {
		t.Fatalf("expected pending code, got %q/%v", code, ok)
	}
}

func TestSupervisorStatusEmitsTransitions(t *testing.T) {
	h := newHarness(true)
	if err := h.sup.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	h.client.handler(&events.Connected{})
	h.client.handler(&events.LoggedOut{})

	states := h.status.states()
	if len(states) < 2 {
		t.Fatalf("expected emitted transitions, got %v", states)
	}
	if states[0] != StateConnected || states[len(states)-1] != StateLoggedOut {
		t.Fatalf("unexpected transition order: %v", states)
	}
}

func TestSupervisorDispatchClonesMessages(t *testing.T) {
	h := newHarness(true)
	got := make(chan *events.Message, 1)
	h.sup.SetListeners(listenerFunc(func(ctx context.Context, evt *events.Message) {
		got <- evt
	}), nil)

	original := &events.Message{
		RawMessage: &waE2E.Message{Conversation: proto.String("original")},
	}
	h.sup.dispatchMessage(original)

	dup := <-got
	if dup == original {
		t.Fatalf("listener must receive a clone")
	}
	dup.RawMessage.Conversation = proto.String("mexido")
	if original.RawMessage.GetConversation() != "original" {
		t.Fatalf("clone shares memory with the original event")
	}
}

type listenerFunc func(ctx context.Context, evt *events.Message)

func (f listenerFunc) HandleMessage(ctx context.Context, evt *events.Message) { f(ctx, evt) }
