package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes events to a durable topic exchange; the subject is the routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, subject, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AMQPSubscriber consumes from queues bound to the topic exchange. NATS-style
// subjects work as binding keys since both use "*" for a single token.
type AMQPSubscriber struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPSubscriber(url, exchange string) (*AMQPSubscriber, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSubscriber{conn: conn, ch: ch, exchange: exchange}, nil
}

// Subscribe delivers to a private, auto-deleted queue.
func (s *AMQPSubscriber) Subscribe(subject string, handler func(msg *Message)) error {
	return s.consume(subject, "", false, handler)
}

// QueueSubscribe shares a durable queue between all consumers using the same name.
func (s *AMQPSubscriber) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	return s.consume(subject, queue, true, handler)
}

func (s *AMQPSubscriber) consume(subject, queue string, durable bool, handler func(msg *Message)) error {
	q, err := s.ch.QueueDeclare(queue, durable, !durable, !durable, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := s.ch.QueueBind(q.Name, subject, s.exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", subject, err)
	}
	deliveries, err := s.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}

	go func() {
		for d := range deliveries {
			handler(&Message{
				Subject:   d.RoutingKey,
				Data:      d.Body,
				Timestamp: d.Timestamp,
				ID:        d.MessageId,
			})
			_ = d.Ack(false)
		}
	}()
	return nil
}

func (s *AMQPSubscriber) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
