package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/db/models"
	"github.com/angelmondragon/affiliate-ledger/pkg/enums"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/affiliate-ledger/pkg/outbox/registry"
)

const ledgerTopic = "ledger-topic"

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		commissionEvent(t, "event-one"),
		commissionEvent(t, "event-two"),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, resolvingRegistry(), &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row marked published, got %v", repo.published)
	}
}

func TestPublishSetsOrderingKeyAndAttributes(t *testing.T) {
	event := commissionEvent(t, "ordered")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, resolvingRegistry(), &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.OrderingKey != event.AggregateID.String() {
		t.Fatalf("ordering key = %q, want aggregate id", msg.OrderingKey)
	}
	if msg.Attributes["event_type"] != string(enums.EventCommissionCreated) {
		t.Fatalf("unexpected event_type attribute %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_type"] != string(enums.AggregateCommission) {
		t.Fatalf("unexpected aggregate_type attribute %q", msg.Attributes["aggregate_type"])
	}
	if msg.Attributes["schema_version"] != "1" {
		t.Fatalf("unexpected schema_version attribute %q", msg.Attributes["schema_version"])
	}
}

func TestPublishersAreReusedAcrossBatches(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{commissionEvent(t, "reuse")}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, repo, pub, resolvingRegistry(), &fakeDLQRepo{}, nil)
	built := 0
	service.publishers.factory = func(topic string) publisher {
		built++
		return pub
	}

	for i := 0; i < 2; i++ {
		if _, err := service.processBatch(context.Background()); err != nil {
			t.Fatalf("process batch returned error: %v", err)
		}
	}
	if built != 1 {
		t.Fatalf("expected one publisher built, got %d", built)
	}
}

func TestProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := commissionEvent(t, "nonretryable")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlqRepo, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := commissionEvent(t, "max-attempts")
	event.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, resolvingRegistry(), dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	if dlqRepo.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", dlqRepo.entries[0].ErrorReason)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row should not be marked as a retryable failure")
	}
}

func TestTerminalEventForwardedToDeadLetterTopic(t *testing.T) {
	event := commissionEvent(t, "forward")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("unsupported"))}
	dead := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, &fakeDLQRepo{}, nil)
	service.cfg.PubSub.DeadLetterTopic = "ledger-dlq"
	service.publishers.factory = func(topic string) publisher {
		if topic != "ledger-dlq" {
			t.Fatalf("unexpected topic %q", topic)
		}
		return dead
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dead.sent) != 1 {
		t.Fatalf("expected dead letter forward, got %d messages", len(dead.sent))
	}
	if got := dead.sent[0].Attributes["dlq_reason"]; got != string(enums.OutboxDLQReasonNonRetryable) {
		t.Fatalf("unexpected dlq_reason %q", got)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	base := 100 * time.Millisecond
	if got := nextBackoff(base, base, time.Second); got != 200*time.Millisecond {
		t.Fatalf("expected doubled backoff, got %s", got)
	}
	if got := nextBackoff(800*time.Millisecond, base, time.Second); got != time.Second {
		t.Fatalf("expected capped backoff, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, eventRegistry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
		PubSub: config.PubSubConfig{LedgerTopic: ledgerTopic},
	}
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.Nop(),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         eventRegistry,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func commissionEvent(tb testing.TB, eventID string) models.OutboxEvent {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCommissionCreated,
		AggregateType: enums.AggregateCommission,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func resolvingRegistry() *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventCommissionCreated,
			AggregateType: enums.AggregateCommission,
			Topic:         ledgerTopic,
		},
		Envelope: outbox.PayloadEnvelope{Version: 1},
		Payload:  &payloads.CommissionCreatedEvent{},
	}}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error                 { return nil }
func (f *fakePubSubClient) LedgerPublisher() *gcppubsub.Publisher      { return nil }
func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
