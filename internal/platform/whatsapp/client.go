package whatsapp

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Client abstrai o whatsmeow.Client na superfície que o supervisor e o
// pipeline usam. A indireção existe para o transporte ser simulável em
// teste.
type Client interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	IsConnected() bool
	IsLoggedIn() bool
	HasSession() bool
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (whatsmeow.SendResponse, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	SelfJID() types.JID
	PushName() string
}

// ClientFactory produz um client novo a cada rebuild do supervisor.
type ClientFactory func(ctx context.Context) (Client, error)

type waClient struct {
	*whatsmeow.Client
}

func (c *waClient) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (whatsmeow.SendResponse, error) {
	return c.Client.SendMessage(ctx, to, msg)
}

// HasSession indica se o device store guarda credenciais de um
// pareamento anterior.
func (c *waClient) HasSession() bool {
	return c.Store != nil && c.Store.ID != nil
}

func (c *waClient) SelfJID() types.JID {
	if c.Store == nil || c.Store.ID == nil {
		return types.EmptyJID
	}
	return *c.Store.ID
}

func (c *waClient) PushName() string {
	if c.Store == nil {
		return ""
	}
	return c.Store.PushName
}

// NewClientFactory liga a fábrica ao device store sqlite da conta.
func NewClientFactory(stores *StoreFactory, log waLog.Logger) ClientFactory {
	if log == nil {
		log = waLog.Noop
	}
	return func(ctx context.Context) (Client, error) {
		container, err := stores.NewDeviceStore(ctx)
		if err != nil {
			return nil, err
		}
		device, err := container.GetFirstDevice(ctx)
		if err != nil {
			return nil, err
		}
		cli := whatsmeow.NewClient(device, log.Sub("Client"))
		// Reconexão é responsabilidade do supervisor; o auto-reconnect
		// interno do whatsmeow brigaria com a política de retry dele.
		cli.EnableAutoReconnect = false
		return &waClient{cli}, nil
	}
}
