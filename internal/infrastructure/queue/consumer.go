package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	app "github.com/mohammadpnp/lead-import/internal/application/leadimport"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const (
	DefaultMaxAttempts    = 5
	DefaultRetryBaseDelay = 5 * time.Second
	maxRetryDelay         = 10 * time.Minute
)

type ConsumerConfig struct {
	Prefetch       int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionRequeue
	actionDrop
)

type verdict struct {
	action  action
	attempt int
	delay   time.Duration
}

// Consumer runs tasks delivered on the parse and commit queues, up to
// Prefetch at once per queue. Failed tasks are retried with exponential
// backoff; once attempts are exhausted the job is failed.
type Consumer struct {
	conn       *amqp.Connection
	topology   Topology
	runner     domain.TaskRunner
	signer     *Signer
	dispatcher *RabbitDispatcher
	cfg        ConsumerConfig
	log        *logrus.Entry
}

func NewConsumer(conn *amqp.Connection, topology Topology, runner domain.TaskRunner, signer *Signer, dispatcher *RabbitDispatcher, cfg ConsumerConfig, log *logrus.Entry) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Consumer{
		conn:       conn,
		topology:   topology.withDefaults(),
		runner:     runner,
		signer:     signer,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.WithField("component", "task_consumer"),
	}
}

// Start consumes both queues until ctx is cancelled or a channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, queue := range []string{c.topology.ParseQueue, c.topology.CommitQueue} {
		queue := queue
		g.Go(func() error {
			return c.consume(gctx, queue)
		})
	}
	return g.Wait()
}

func (c *Consumer) consume(ctx context.Context, queue string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.topology.Declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	return c.serve(ctx, queue, msgs)
}

// serve runs up to Prefetch deliveries at once and waits for the running
// ones before returning, so every delivery is settled on an open channel.
func (c *Consumer) serve(ctx context.Context, queue string, msgs <-chan amqp.Delivery) error {
	log := c.log.WithField("queue", queue)
	log.Info("consumer started")

	var workers errgroup.Group
	workers.SetLimit(c.cfg.Prefetch)
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer shutting down")
			_ = workers.Wait()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				_ = workers.Wait()
				return fmt.Errorf("channel for %s closed", queue)
			}
			workers.Go(func() error {
				c.deliver(ctx, msg)
				return nil
			})
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg amqp.Delivery) {
	v := c.handle(ctx, msg.RoutingKey, msg.Body, msg.Headers)
	log := c.log.WithFields(logrus.Fields{"routing_key": msg.RoutingKey, "attempt": v.attempt})

	var err error
	switch v.action {
	case actionAck:
		err = msg.Ack(false)
	case actionRequeue:
		err = msg.Nack(false, true)
	case actionDrop:
		err = msg.Nack(false, false)
	case actionRetry:
		if rerr := c.dispatcher.retry(context.WithoutCancel(ctx), msg.RoutingKey, msg.Body, v.attempt, v.delay); rerr != nil {
			log.WithError(rerr).Error("schedule retry failed, requeueing")
			err = msg.Nack(false, true)
			break
		}
		log.WithField("delay", v.delay.String()).Warn("task scheduled for retry")
		err = msg.Ack(false)
	}
	if err != nil {
		log.WithError(err).Error("settle delivery failed")
	}
}

func (c *Consumer) handle(ctx context.Context, routingKey string, body []byte, headers amqp.Table) verdict {
	attempt := attemptOf(headers)
	log := c.log.WithFields(logrus.Fields{"routing_key": routingKey, "attempt": attempt})

	signature, _ := headers[headerSignature].(string)
	if err := c.signer.Verify(body, signature); err != nil {
		log.WithError(err).Error("rejecting unsigned task")
		return verdict{action: actionDrop, attempt: attempt}
	}

	var (
		jobID string
		err   error
	)
	switch routingKey {
	case RoutingKeyParse:
		var task domain.ParseTask
		if uerr := json.Unmarshal(body, &task); uerr != nil || task.ImportJobID == "" {
			log.WithError(uerr).Error("rejecting malformed parse task")
			return verdict{action: actionDrop, attempt: attempt}
		}
		jobID = task.ImportJobID
		err = c.runner.RunParse(ctx, task)
	case RoutingKeyCommit:
		var task domain.CommitTask
		if uerr := json.Unmarshal(body, &task); uerr != nil || task.ImportJobID == "" {
			log.WithError(uerr).Error("rejecting malformed commit task")
			return verdict{action: actionDrop, attempt: attempt}
		}
		jobID = task.ImportJobID
		err = c.runner.RunCommit(ctx, task)
	default:
		log.Error("rejecting task with unknown routing key")
		return verdict{action: actionDrop, attempt: attempt}
	}

	switch {
	case err == nil:
		return verdict{action: actionAck, attempt: attempt}
	case errors.Is(err, app.ErrJobFailed):
		log.WithError(err).WithField("job_id", jobID).Warn("task failed the job")
		return verdict{action: actionAck, attempt: attempt}
	case ctx.Err() != nil:
		return verdict{action: actionRequeue, attempt: attempt}
	}

	next := attempt + 1
	if next >= c.cfg.MaxAttempts {
		log.WithError(err).WithField("job_id", jobID).Error("task attempts exhausted")
		if ferr := c.runner.FailJob(ctx, jobID, err); ferr != nil {
			log.WithError(ferr).Error("fail job after exhausted attempts")
			return verdict{action: actionRequeue, attempt: attempt}
		}
		return verdict{action: actionAck, attempt: attempt}
	}
	return verdict{action: actionRetry, attempt: next, delay: c.backoff(next)}
}

func (c *Consumer) backoff(attempt int) time.Duration {
	delay := c.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func attemptOf(headers amqp.Table) int {
	switch v := headers[headerAttempt].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
