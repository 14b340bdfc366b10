package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
)

func seedMessage(id, chat string, dir message.Direction, ts time.Time) message.Message {
	return message.Message{
		ID:        id,
		ChatID:    chat,
		Sender:    chat,
		Content:   "conteúdo " + id,
		Kind:      message.KindText,
		Direction: dir,
		Status:    message.StatusDelivered,
		Timestamp: ts,
		UpdatedAt: ts,
	}
}

func TestMessageRepoSaveAndGet(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()

	msg := seedMessage("m1", "chat-a", message.DirectionIn, time.Now().UTC())
	if err := repo.Save(ctx, &msg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Content != "conteúdo m1" {
		t.Fatalf("unexpected content: %q", got.Content)
	}

	// O repositório devolve cópia; mexer nela não vaza para dentro.
	got.Content = "alterado"
	again, _ := repo.Get(ctx, "m1")
	if again.Content != "conteúdo m1" {
		t.Fatalf("returned copy shares memory with the store")
	}

	if _, err := repo.Get(ctx, "inexistente"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMessageRepoSaveSameIDOverwrites(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()

	first := seedMessage("m1", "chat-a", message.DirectionIn, time.Now().UTC())
	repo.Save(ctx, &first)
	second := first
	second.Content = "editado"
	repo.Save(ctx, &second)

	list, err := repo.List(ctx, MessageQuery{})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected single entry after overwrite, got %d (%v)", len(list), err)
	}
	if list[0].Content != "editado" {
		t.Fatalf("overwrite lost: %q", list[0].Content)
	}
}

func TestMessageRepoUpdateStatusMonotonic(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()

	msg := seedMessage("m1", "chat-a", message.DirectionOut, time.Now().UTC())
	msg.Status = message.StatusSent
	repo.Save(ctx, &msg)

	at := time.Now().UTC().Add(time.Minute)
	if err := repo.UpdateStatus(ctx, "m1", message.StatusDelivered, at); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ := repo.Get(ctx, "m1")
	if got.Status != message.StatusDelivered || !got.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected state after update: %+v", got)
	}

	// Recibo atrasado com status menor não rebaixa.
	if err := repo.UpdateStatus(ctx, "m1", message.StatusSent, at.Add(time.Minute)); err != nil {
		t.Fatalf("downgrade attempt errored: %v", err)
	}
	got, _ = repo.Get(ctx, "m1")
	if got.Status != message.StatusDelivered {
		t.Fatalf("status downgraded to %s", got.Status)
	}

	if err := repo.UpdateStatus(ctx, "m1", message.StatusRead, at.Add(2*time.Minute)); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	got, _ = repo.Get(ctx, "m1")
	if got.Status != message.StatusRead {
		t.Fatalf("expected read, got %s", got.Status)
	}

	if err := repo.UpdateStatus(ctx, "fantasma", message.StatusRead, at); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMessageRepoListNewestFirstWithFilters(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()
	base := time.Now().UTC()

	repo.Save(ctx, ptrMsg(seedMessage("m1", "chat-a", message.DirectionIn, base)))
	repo.Save(ctx, ptrMsg(seedMessage("m2", "chat-b", message.DirectionOut, base.Add(time.Second))))
	repo.Save(ctx, ptrMsg(seedMessage("m3", "chat-a", message.DirectionOut, base.Add(2*time.Second))))
	repo.Save(ctx, ptrMsg(seedMessage("m4", "chat-a", message.DirectionIn, base.Add(3*time.Second))))

	all, err := repo.List(ctx, MessageQuery{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 4 || all[0].ID != "m4" || all[3].ID != "m1" {
		t.Fatalf("expected newest first, got %+v", ids(all))
	}

	chatA, _ := repo.List(ctx, MessageQuery{Chat: "chat-a"})
	if len(chatA) != 3 || chatA[0].ID != "m4" {
		t.Fatalf("chat filter broken: %v", ids(chatA))
	}

	outbound, _ := repo.List(ctx, MessageQuery{Direction: message.DirectionOut})
	if len(outbound) != 2 || outbound[0].ID != "m3" || outbound[1].ID != "m2" {
		t.Fatalf("direction filter broken: %v", ids(outbound))
	}

	paged, _ := repo.List(ctx, MessageQuery{Limit: 2, Offset: 1})
	if len(paged) != 2 || paged[0].ID != "m3" || paged[1].ID != "m2" {
		t.Fatalf("pagination broken: %v", ids(paged))
	}
}

func TestMessageRepoListDefaultLimit(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 60; i++ {
		repo.Save(ctx, ptrMsg(seedMessage(fmt.Sprintf("m%03d", i), "chat-a", message.DirectionIn, base.Add(time.Duration(i)*time.Second))))
	}

	list, err := repo.List(ctx, MessageQuery{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 50 {
		t.Fatalf("expected default limit of 50, got %d", len(list))
	}
	if list[0].ID != "m059" {
		t.Fatalf("expected newest first, got %s", list[0].ID)
	}
}

func TestMessageRepoEvictsOldestAtCap(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i <= memoryMessageCap; i++ {
		repo.Save(ctx, ptrMsg(seedMessage(fmt.Sprintf("m%05d", i), "chat-a", message.DirectionIn, base)))
	}

	if _, err := repo.Get(ctx, "m00000"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected oldest message evicted, got %v", err)
	}
	if _, err := repo.Get(ctx, fmt.Sprintf("m%05d", memoryMessageCap)); err != nil {
		t.Fatalf("newest message missing: %v", err)
	}
}

func TestMessageRepoSince(t *testing.T) {
	repo := NewInMemoryMessageRepo()
	ctx := context.Background()
	base := time.Now().UTC()

	repo.Save(ctx, ptrMsg(seedMessage("velha", "chat-a", message.DirectionIn, base.Add(-48*time.Hour))))
	repo.Save(ctx, ptrMsg(seedMessage("ontem", "chat-a", message.DirectionIn, base.Add(-12*time.Hour))))
	repo.Save(ctx, ptrMsg(seedMessage("agora", "chat-a", message.DirectionOut, base)))

	recent, err := repo.Since(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("since failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "ontem" || recent[1].ID != "agora" {
		t.Fatalf("unexpected window: %v", ids(recent))
	}
}

func ptrMsg(m message.Message) *message.Message { return &m }

func ids(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
