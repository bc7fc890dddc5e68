package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	app "github.com/mohammadpnp/lead-import/internal/application/leadimport"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

type fakeRunner struct {
	parseErr  error
	commitErr error
	parsed    []domain.ParseTask
	committed []domain.CommitTask
	failed    map[string]error
}

func (f *fakeRunner) RunParse(_ context.Context, task domain.ParseTask) error {
	f.parsed = append(f.parsed, task)
	return f.parseErr
}

func (f *fakeRunner) RunCommit(_ context.Context, task domain.CommitTask) error {
	f.committed = append(f.committed, task)
	return f.commitErr
}

func (f *fakeRunner) FailJob(_ context.Context, jobID string, cause error) error {
	if f.failed == nil {
		f.failed = map[string]error{}
	}
	f.failed[jobID] = cause
	return nil
}

func newTestConsumer(runner domain.TaskRunner, signer *Signer) *Consumer {
	logger, _ := test.NewNullLogger()
	return NewConsumer(nil, Topology{}, runner, signer, nil, ConsumerConfig{
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
	}, logrus.NewEntry(logger))
}

func signedHeaders(signer *Signer, body []byte, attempt int) amqp.Table {
	return amqp.Table{headerSignature: signer.Sign(body), headerAttempt: int32(attempt)}
}

func TestConsumerRunsSignedTasks(t *testing.T) {
	t.Parallel()

	signer := NewSigner("secret")
	runner := &fakeRunner{}
	c := newTestConsumer(runner, signer)

	body, _ := json.Marshal(domain.ParseTask{ImportJobID: "job-1"})
	v := c.handle(context.Background(), RoutingKeyParse, body, signedHeaders(signer, body, 0))
	require.Equal(t, actionAck, v.action)
	require.Len(t, runner.parsed, 1)

	commit, _ := json.Marshal(domain.CommitTask{ImportJobID: "job-1", DuplicateConfig: domain.DuplicateConfig{Strategy: domain.DuplicateSkip}})
	v = c.handle(context.Background(), RoutingKeyCommit, commit, signedHeaders(signer, commit, 0))
	require.Equal(t, actionAck, v.action)
	require.Equal(t, domain.DuplicateSkip, runner.committed[0].DuplicateConfig.Strategy)
}

func TestConsumerDropsBadDeliveries(t *testing.T) {
	t.Parallel()

	signer := NewSigner("secret")
	runner := &fakeRunner{}
	c := newTestConsumer(runner, signer)
	body, _ := json.Marshal(domain.ParseTask{ImportJobID: "job-1"})

	tests := []struct {
		name       string
		routingKey string
		body       []byte
		headers    amqp.Table
	}{
		{name: "unsigned", routingKey: RoutingKeyParse, body: body, headers: amqp.Table{}},
		{name: "forged", routingKey: RoutingKeyParse, body: body, headers: amqp.Table{headerSignature: NewSigner("other").Sign(body)}},
		{name: "malformed", routingKey: RoutingKeyParse, body: []byte("{"), headers: signedHeaders(signer, []byte("{"), 0)},
		{name: "unknown key", routingKey: "import.other", body: body, headers: signedHeaders(signer, body, 0)},
	}
	for _, tt := range tests {
		v := c.handle(context.Background(), tt.routingKey, tt.body, tt.headers)
		require.Equal(t, actionDrop, v.action, tt.name)
	}
	require.Empty(t, runner.parsed)
}

func TestConsumerRetriesWithBackoffThenFailsJob(t *testing.T) {
	t.Parallel()

	signer := NewSigner("")
	runner := &fakeRunner{commitErr: errors.New("db down")}
	c := newTestConsumer(runner, signer)
	body, _ := json.Marshal(domain.CommitTask{ImportJobID: "job-9"})

	v := c.handle(context.Background(), RoutingKeyCommit, body, amqp.Table{})
	require.Equal(t, actionRetry, v.action)
	require.Equal(t, 1, v.attempt)
	require.Equal(t, time.Second, v.delay)

	v = c.handle(context.Background(), RoutingKeyCommit, body, amqp.Table{headerAttempt: int32(1)})
	require.Equal(t, actionRetry, v.action)
	require.Equal(t, 2*time.Second, v.delay)

	v = c.handle(context.Background(), RoutingKeyCommit, body, amqp.Table{headerAttempt: int32(2)})
	require.Equal(t, actionAck, v.action)
	require.EqualError(t, runner.failed["job-9"], "db down")
}

func TestConsumerAcksTasksThatFailedTheJob(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{parseErr: fmt.Errorf("%w: corrupt file", app.ErrJobFailed)}
	c := newTestConsumer(runner, NewSigner(""))
	body, _ := json.Marshal(domain.ParseTask{ImportJobID: "job-1"})

	v := c.handle(context.Background(), RoutingKeyParse, body, amqp.Table{})
	require.Equal(t, actionAck, v.action)
	require.Empty(t, runner.failed)
}

func TestConsumerRequeuesOnShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{parseErr: context.Canceled}
	c := newTestConsumer(runner, NewSigner(""))
	body, _ := json.Marshal(domain.ParseTask{ImportJobID: "job-1"})

	v := c.handle(ctx, RoutingKeyParse, body, amqp.Table{})
	require.Equal(t, actionRequeue, v.action)
}

func TestBackoffIsCapped(t *testing.T) {
	t.Parallel()

	c := newTestConsumer(&fakeRunner{}, NewSigner(""))
	require.Equal(t, maxRetryDelay, c.backoff(30))
}

// recordingAcker settles deliveries in memory.
type recordingAcker struct {
	mu    sync.Mutex
	acked []uint64
}

func (a *recordingAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(uint64, bool, bool) error { return nil }

func (a *recordingAcker) Reject(uint64, bool) error { return nil }

func (a *recordingAcker) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked)
}

// gatedRunner blocks every parse until release is closed.
type gatedRunner struct {
	release chan struct{}

	mu      sync.Mutex
	running int
	peak    int
	started int
}

func (r *gatedRunner) RunParse(ctx context.Context, _ domain.ParseTask) error {
	r.mu.Lock()
	r.running++
	r.started++
	r.peak = max(r.peak, r.running)
	r.mu.Unlock()

	select {
	case <-r.release:
	case <-ctx.Done():
	}

	r.mu.Lock()
	r.running--
	r.mu.Unlock()
	return nil
}

func (r *gatedRunner) RunCommit(context.Context, domain.CommitTask) error { return nil }

func (r *gatedRunner) FailJob(context.Context, string, error) error { return nil }

func (r *gatedRunner) snapshot() (started, peak int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.peak
}

func TestConsumerRunsUpToPrefetchDeliveriesAtOnce(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	runner := &gatedRunner{release: make(chan struct{})}
	c := NewConsumer(nil, Topology{}, runner, NewSigner(""), nil, ConsumerConfig{Prefetch: 2}, logrus.NewEntry(logger))

	acker := &recordingAcker{}
	body, _ := json.Marshal(domain.ParseTask{ImportJobID: "job-1"})
	msgs := make(chan amqp.Delivery, 3)
	for tag := uint64(1); tag <= 3; tag++ {
		msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, RoutingKey: RoutingKeyParse, Body: body}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.serve(ctx, "import.parse", msgs) }()

	require.Eventually(t, func() bool {
		started, _ := runner.snapshot()
		return started == 2
	}, time.Second, 5*time.Millisecond)
	// The third delivery waits for a free slot.
	time.Sleep(20 * time.Millisecond)
	started, peak := runner.snapshot()
	require.Equal(t, 2, started)
	require.Equal(t, 2, peak)
	require.Zero(t, acker.count())

	close(runner.release)
	require.Eventually(t, func() bool { return acker.count() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, peak = runner.snapshot()
	require.Equal(t, 2, peak)
}

func TestConsumerWaitsForRunningDeliveriesOnShutdown(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	runner := &gatedRunner{release: make(chan struct{})}
	c := NewConsumer(nil, Topology{}, runner, NewSigner(""), nil, ConsumerConfig{Prefetch: 1}, logrus.NewEntry(logger))

	acker := &recordingAcker{}
	body, _ := json.Marshal(domain.ParseTask{ImportJobID: "job-1"})
	msgs := make(chan amqp.Delivery, 1)
	msgs <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, RoutingKey: RoutingKeyParse, Body: body}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.serve(ctx, "import.parse", msgs) }()

	require.Eventually(t, func() bool {
		started, _ := runner.snapshot()
		return started == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	// The runner returned nil after the cancel, so the delivery is acked
	// before serve returns.
	require.Equal(t, 1, acker.count())
}
