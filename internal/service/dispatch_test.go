package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type capturingPublisher struct {
	published []domain.OutboxEvent
	failAfter int
	failWith  error
}

func (p *capturingPublisher) Publish(_ context.Context, e domain.OutboxEvent) error {
	if p.failWith != nil && len(p.published) >= p.failAfter {
		return p.failWith
	}
	p.published = append(p.published, e)
	return nil
}

func enqueueTestEvent(t *testing.T, outbox *mockOutbox, dedupeID string) domain.OutboxEvent {
	t.Helper()
	e := domain.OutboxEvent{
		ID:        uuid.New(),
		Kind:      domain.EventPromotionDecision,
		DedupeID:  dedupeID,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now(),
	}
	if err := outbox.Enqueue(context.Background(), &e); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return e
}

func TestDrainOnce_PublishesAndMarks(t *testing.T) {
	outbox := newMockOutbox()
	pub := &capturingPublisher{}
	d := NewOutboxDispatcher(outbox, pub, zap.NewNop())
	ctx := context.Background()

	first := enqueueTestEvent(t, outbox, "d1")
	second := enqueueTestEvent(t, outbox, "d2")

	n, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("published = %d, want 2", n)
	}

	// Enqueue order preserved.
	if pub.published[0].ID != first.ID || pub.published[1].ID != second.ID {
		t.Error("events published out of enqueue order")
	}

	remaining, _ := outbox.ListUnpublished(ctx, 10)
	if len(remaining) != 0 {
		t.Errorf("%d events still unpublished after drain", len(remaining))
	}
}

func TestDrainOnce_PublishFailureLeavesEventQueued(t *testing.T) {
	outbox := newMockOutbox()
	pub := &capturingPublisher{failAfter: 1, failWith: errors.New("broker down")}
	d := NewOutboxDispatcher(outbox, pub, zap.NewNop())
	ctx := context.Background()

	enqueueTestEvent(t, outbox, "d1")
	failed := enqueueTestEvent(t, outbox, "d2")
	enqueueTestEvent(t, outbox, "d3")

	// The failure stops the batch so retry order is preserved; it is not an
	// error, the events just stay queued.
	n, err := d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("published = %d, want 1 before the failure", n)
	}

	remaining, _ := outbox.ListUnpublished(ctx, 10)
	if len(remaining) != 2 {
		t.Fatalf("%d events unpublished, want 2", len(remaining))
	}
	if remaining[0].ID != failed.ID {
		t.Error("failed event is not first in the retry queue")
	}

	// The broker recovers; the next drain delivers the rest.
	pub.failWith = nil
	n, err = d.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if n != 2 {
		t.Errorf("retry published = %d, want 2", n)
	}
}

func TestDrainOnce_EmptyOutbox(t *testing.T) {
	d := NewOutboxDispatcher(newMockOutbox(), &capturingPublisher{}, zap.NewNop())

	n, err := d.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("published = %d, want 0", n)
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	d := NewOutboxDispatcher(newMockOutbox(), &capturingPublisher{}, zap.NewNop())
	d.SetInterval(time.Hour)

	d.Start()
	d.Start() // no-op
	d.Stop()
	d.Stop() // no-op
}
