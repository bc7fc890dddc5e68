package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyParse  = "import.parse"
	RoutingKeyCommit = "import.commit"

	headerSignature = "x-task-signature"
	headerAttempt   = "x-task-attempt"
)

type Topology struct {
	Exchange    string
	ParseQueue  string
	CommitQueue string
}

func (t Topology) withDefaults() Topology {
	if t.Exchange == "" {
		t.Exchange = "lead_import"
	}
	if t.ParseQueue == "" {
		t.ParseQueue = t.Exchange + ".parse"
	}
	if t.CommitQueue == "" {
		t.CommitQueue = t.Exchange + ".commit"
	}
	return t
}

func (t Topology) retryExchange() string {
	return t.Exchange + ".retry"
}

func (t Topology) retryQueue() string {
	return t.Exchange + ".retry"
}

// Declare creates the work exchange and queues plus a retry queue whose
// messages dead-letter back onto the work exchange when their TTL expires.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if err := ch.ExchangeDeclare(t.retryExchange(), "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.retryExchange(), err)
	}

	bindings := map[string]string{
		t.ParseQueue:  RoutingKeyParse,
		t.CommitQueue: RoutingKeyCommit,
	}
	for queue, key := range bindings {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	if _, err := ch.QueueDeclare(t.retryQueue(), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": t.Exchange,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.retryQueue(), err)
	}
	if err := ch.QueueBind(t.retryQueue(), "", t.retryExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.retryQueue(), err)
	}
	return nil
}
