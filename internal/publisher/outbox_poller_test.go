package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/repository"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type MockRepository struct {
	m            sync.Mutex
	OutboxEvents []*repository.OutboxEvent
	FetchErr     error
	PublishedIDs []int64
	DeleteBefore time.Time
	DeleteCalls  int
}

func (m *MockRepository) GetUnpublishedEvents(context.Context, int) ([]*repository.OutboxEvent, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	var out []*repository.OutboxEvent
	for _, ev := range m.OutboxEvents {
		if ev.PublishedAt == nil {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MockRepository) MarkEventPublished(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	now := time.Now()
	for _, ev := range m.OutboxEvents {
		if ev.ID == id {
			ev.PublishedAt = &now
		}
	}
	m.PublishedIDs = append(m.PublishedIDs, id)
	return nil
}

func (m *MockRepository) DeletePublishedBefore(_ context.Context, before time.Time) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.DeleteCalls++
	m.DeleteBefore = before
	return 0, nil
}

type fakeWriter struct {
	m        sync.Mutex
	messages []kafkaGo.Message
	calls    int
	failOn   map[string]bool
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	for _, msg := range msgs {
		if w.failOn[string(msg.Key)] {
			return errors.New("broker rejected message")
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	return nil
}

func event(id int64, order string) *repository.OutboxEvent {
	return &repository.OutboxEvent{
		ID:            id,
		AggregateType: repository.AggregateOrder,
		AggregateID:   order,
		EventType:     repository.EventOrderCreated,
		Payload:       json.RawMessage(fmt.Sprintf(`{"order_number":%q}`, order)),
		CreatedAt:     time.Now(),
	}
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "ORD-1"), event(2, "ORD-2")}}
	writer := &fakeWriter{}
	poller := newOutboxPoller(repo, writer, Config{}, zap.NewNop())

	poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1, 2}, repo.PublishedIDs)
	require.Len(t, writer.messages, 2)
	assert.Equal(t, "ORD-1", string(writer.messages[0].Key))
	assert.Equal(t, "event_type", writer.messages[0].Headers[0].Key)
	assert.Equal(t, repository.EventOrderCreated, string(writer.messages[0].Headers[0].Value))
	assert.JSONEq(t, `{"order_number":"ORD-1"}`, string(writer.messages[0].Value))
}

func TestProcessUnpublishedEvents_StopsAtFirstFailure(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "ORD-1"), event(2, "ORD-2"), event(3, "ORD-3")}}
	writer := &fakeWriter{failOn: map[string]bool{"ORD-2": true}}
	poller := newOutboxPoller(repo, writer, Config{}, zap.NewNop())

	poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1}, repo.PublishedIDs)
	assert.Equal(t, 2, writer.calls)
}

func TestProcessUnpublishedEvents_BreakerOpens(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "ORD-1")}}
	writer := &fakeWriter{err: errors.New("kafka unavailable")}
	poller := newOutboxPoller(repo, writer, Config{BreakerTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 10; i++ {
		poller.processUnpublishedEvents(context.Background())
	}

	assert.Equal(t, 5, writer.calls, "breaker should stop calling the writer once open")
	assert.Empty(t, repo.PublishedIDs)
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	repo := &MockRepository{FetchErr: errors.New("database connection error")}
	writer := &fakeWriter{}
	poller := newOutboxPoller(repo, writer, Config{}, zap.NewNop())

	poller.processUnpublishedEvents(context.Background())

	assert.Zero(t, writer.calls)
}

func TestCleanupPublished(t *testing.T) {
	repo := &MockRepository{}
	poller := newOutboxPoller(repo, &fakeWriter{}, Config{Retention: 24 * time.Hour}, zap.NewNop())

	poller.cleanupPublished(context.Background())

	assert.Equal(t, 1, repo.DeleteCalls)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), repo.DeleteBefore, time.Minute)

	disabled := newOutboxPoller(repo, &fakeWriter{}, Config{}, zap.NewNop())
	disabled.cleanupPublished(context.Background())
	assert.Equal(t, 1, repo.DeleteCalls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "ORD-1")}}
	writer := &fakeWriter{}
	poller := newOutboxPoller(repo, writer, Config{PollInterval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		repo.m.Lock()
		defer repo.m.Unlock()
		return len(repo.PublishedIDs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

// slowWriter holds each write open until released and records whether
// Close arrived while a write was in flight.
type slowWriter struct {
	m                  sync.Mutex
	inFlight           bool
	closed             bool
	closedWhileWriting bool
	started            chan struct{}
	release            chan struct{}
}

func (w *slowWriter) WriteMessages(_ context.Context, _ ...kafkaGo.Message) error {
	w.m.Lock()
	w.inFlight = true
	w.m.Unlock()
	select {
	case w.started <- struct{}{}:
	default:
	}
	<-w.release
	w.m.Lock()
	w.inFlight = false
	w.m.Unlock()
	return nil
}

func (w *slowWriter) Close() error {
	w.m.Lock()
	defer w.m.Unlock()
	w.closed = true
	w.closedWhileWriting = w.inFlight
	return nil
}

func TestStart_StopWaitsForRunBeforeClose(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "ORD-1")}}
	writer := &slowWriter{started: make(chan struct{}, 1), release: make(chan struct{})}
	poller := newOutboxPoller(repo, writer, Config{PollInterval: 10 * time.Millisecond}, zap.NewNop())

	stop := poller.Start(context.Background())
	select {
	case <-writer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("no write started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- stop() }()

	select {
	case <-stopped:
		t.Fatal("stop returned while a write was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(writer.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	writer.m.Lock()
	defer writer.m.Unlock()
	assert.True(t, writer.closed)
	assert.False(t, writer.closedWhileWriting)
}

func TestRelay_WithSQLiteStore(t *testing.T) {
	store, err := repository.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.InsertOutboxEvent(ctx, repository.AggregateOrder, "ORD-7", repository.EventOrderCancelled, map[string]string{"order_number": "ORD-7"}))

	writer := &fakeWriter{}
	poller := newOutboxPoller(store, writer, Config{}, zap.NewNop())
	poller.processUnpublishedEvents(ctx)

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "ORD-7", string(writer.messages[0].Key))

	pending, err := store.GetUnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	const topic = "storefront-orders"
	createTopic(t, brokerAddr, topic)

	repo := &MockRepository{OutboxEvents: []*repository.OutboxEvent{event(1, "ORD-123")}}
	poller := NewOutboxPoller(repo, Config{
		Brokers:      []string{brokerAddr},
		Topic:        topic,
		PollInterval: time.Second,
	}, zap.NewNop())
	defer poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ORD-123", string(msg.Key))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "ORD-123", payload["order_number"])

	require.Eventually(t, func() bool {
		repo.m.Lock()
		defer repo.m.Unlock()
		return len(repo.PublishedIDs) == 1
	}, 10*time.Second, 100*time.Millisecond)
}
