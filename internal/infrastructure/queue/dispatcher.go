package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

// RabbitDispatcher publishes parse and commit tasks as persistent messages.
type RabbitDispatcher struct {
	mu       sync.Mutex
	channel  *amqp.Channel
	topology Topology
	signer   *Signer
}

func NewRabbitDispatcher(conn *amqp.Connection, topology Topology, signer *Signer) (*RabbitDispatcher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	topology = topology.withDefaults()
	if err := topology.Declare(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &RabbitDispatcher{channel: ch, topology: topology, signer: signer}, nil
}

func (d *RabbitDispatcher) DispatchParse(ctx context.Context, task domain.ParseTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode parse task: %w", err)
	}
	return d.publish(ctx, d.topology.Exchange, RoutingKeyParse, body, 0, 0)
}

func (d *RabbitDispatcher) DispatchCommit(ctx context.Context, task domain.CommitTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode commit task: %w", err)
	}
	return d.publish(ctx, d.topology.Exchange, RoutingKeyCommit, body, 0, 0)
}

// retry parks body on the retry queue for delay; it then returns to the
// work exchange under its original routing key.
func (d *RabbitDispatcher) retry(ctx context.Context, routingKey string, body []byte, attempt int, delay time.Duration) error {
	return d.publish(ctx, d.topology.retryExchange(), routingKey, body, attempt, delay)
}

func (d *RabbitDispatcher) publish(ctx context.Context, exchange, routingKey string, body []byte, attempt int, delay time.Duration) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		Headers: amqp.Table{
			headerAttempt: int32(attempt),
		},
	}
	if signature := d.signer.Sign(body); signature != "" {
		msg.Headers[headerSignature] = signature
	}
	if delay > 0 {
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (d *RabbitDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel.Close()
}
