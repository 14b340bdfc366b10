package message

import "time"

type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
	KindSticker  Kind = "sticker"
	KindLocation Kind = "location"
	KindContact  Kind = "contact"
	KindReaction Kind = "reaction"
	KindUnknown  Kind = "unknown"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// AckLevel é o nível de confirmação reportado pelo transporte (-1..4).
type AckLevel int

const (
	AckError   AckLevel = -1
	AckPending AckLevel = 0
	AckServer  AckLevel = 1
	AckDevice  AckLevel = 2
	AckRead    AckLevel = 3
	AckPlayed  AckLevel = 4
)

// Status converte o ack em status de mensagem. Níveis desconhecidos
// retornam vazio e não devem sobrescrever o status atual.
func (a AckLevel) Status() Status {
	switch a {
	case AckError:
		return StatusFailed
	case AckPending:
		return StatusPending
	case AckServer:
		return StatusSent
	case AckDevice:
		return StatusDelivered
	case AckRead, AckPlayed:
		return StatusRead
	default:
		return ""
	}
}

// Rank ordena a escada pending < sent < delivered < read < failed.
// Recibos podem chegar fora de ordem; um status só avança, nunca regride.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// Message representa uma mensagem trafegada pela conta, nos dois sentidos.
type Message struct {
	ID         string    `json:"id" db:"id"`
	ChatID     string    `json:"chatId" db:"chat_id"`
	Sender     string    `json:"sender" db:"sender"`
	SenderName string    `json:"senderName,omitempty" db:"sender_name"`
	Recipient  string    `json:"recipient,omitempty" db:"recipient"`
	Content    string    `json:"content,omitempty" db:"content"`
	Kind       Kind      `json:"kind" db:"kind"`
	Direction  Direction `json:"direction" db:"direction"`
	Status     Status    `json:"status" db:"status"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	IsGroup    bool      `json:"isGroup" db:"is_group"`
	FromMe     bool      `json:"fromMe" db:"from_me"`
	MediaURL   string    `json:"mediaUrl,omitempty" db:"media_url"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty" db:"updated_at"`
}

// Contact devolve o identificador do interlocutor: remetente nas mensagens
// recebidas, destinatário nas enviadas.
func (m Message) Contact() string {
	if m.Direction == DirectionIn {
		return m.Sender
	}
	return m.Recipient
}

type ResponseType string

const (
	ResponseLLM        ResponseType = "llm"
	ResponseDefault    ResponseType = "default"
	ResponseAfterHours ResponseType = "afterHours"
)

// AutoReplyRecord registra uma resposta automática emitida pelo gate.
type AutoReplyRecord struct {
	ID             string       `json:"id" db:"id"`
	Sender         string       `json:"sender" db:"sender"`
	SenderName     string       `json:"senderName,omitempty" db:"sender_name"`
	RequestText    string       `json:"requestText,omitempty" db:"request_text"`
	ResponseText   string       `json:"responseText" db:"response_text"`
	ResponseType   ResponseType `json:"responseType" db:"response_type"`
	IsGroup        bool         `json:"isGroup" db:"is_group"`
	IsWorkingHours bool         `json:"isWorkingHours" db:"is_working_hours"`
	Timestamp      time.Time    `json:"timestamp" db:"timestamp"`
}

type SendTextInput struct {
	To   string `json:"to"`
	Text string `json:"text"`
}
