package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pathpatrol/internal/model"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName           = "pathpatrol.complaints"
	DeadLetterExchange     = "pathpatrol.complaints.dlx"
	QueueName              = "complaint.status.notifications"
	DeadLetterQueue        = "complaint.status.notifications.dlq"
	RoutingKeyStatusUpdate = "complaint.status.updated"

	reconnectDelay = 5 * time.Second
	publishTimeout = 5 * time.Second
	dialAttempts   = 5
)

type StatusUpdateMessage struct {
	ComplaintID int64  `json:"complaint_id"`
	Location    string `json:"location"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	NotifyEmail string `json:"notify_email,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func NewStatusUpdateMessage(change model.StatusChange) StatusUpdateMessage {
	ts := change.ChangedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return StatusUpdateMessage{
		ComplaintID: change.ComplaintID,
		Location:    change.Location,
		OldStatus:   string(change.OldStatus),
		NewStatus:   string(change.NewStatus),
		NotifyEmail: change.NotifyEmail,
		Timestamp:   ts.Unix(),
	}
}

func (m StatusUpdateMessage) StatusChange() model.StatusChange {
	return model.StatusChange{
		ComplaintID: m.ComplaintID,
		Location:    m.Location,
		OldStatus:   model.ComplaintStatus(m.OldStatus),
		NewStatus:   model.ComplaintStatus(m.NewStatus),
		NotifyEmail: m.NotifyEmail,
		ChangedAt:   time.Unix(m.Timestamp, 0),
	}
}

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("rabbitmq: not connected")

type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	url       string
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewRabbitMQ(host, port, user, password string) (*RabbitMQ, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, password, host, port)

	rmq := &RabbitMQ{
		url:  url,
		done: make(chan struct{}),
	}

	err := retry.Do(
		rmq.connect,
		retry.Attempts(dialAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("RabbitMQ dial attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}

	go rmq.handleReconnect()

	return rmq, nil
}

// connect dials without holding the lock and swaps the new connection in.
func (r *RabbitMQ) connect() error {
	conn, ch, err := r.dial()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		ch.Close()
		conn.Close()
		return ErrNotConnected
	default:
	}
	r.conn, r.channel = conn, ch

	log.Println("RabbitMQ connected and configured")
	return nil
}

func (r *RabbitMQ) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// declare sets up the topic exchange, the notification queue and its dead-letter queue.
func declare(ch *amqp.Channel) error {
	for _, name := range []string{ExchangeName, DeadLetterExchange} {
		err := ch.ExchangeDeclare(
			name,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", DeadLetterQueue, err)
	}
	if err := ch.QueueBind(DeadLetterQueue, "#", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", DeadLetterQueue, err)
	}

	_, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": DeadLetterExchange},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", QueueName, err)
	}
	if err := ch.QueueBind(QueueName, RoutingKeyStatusUpdate, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue with key %s: %w", RoutingKeyStatusUpdate, err)
	}
	return nil
}

func (r *RabbitMQ) handleReconnect() {
	for {
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		select {
		case <-r.done:
			return
		case err := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			if err != nil {
				log.Printf("RabbitMQ connection lost: %v. Reconnecting...", err)
			}
			if !r.reconnect() {
				return
			}
		}
	}
}

// reconnect drops the dead channel so publishers fail fast, then dials until
// it succeeds or Close is called. It reports whether a connection is up.
func (r *RabbitMQ) reconnect() bool {
	r.mu.Lock()
	r.conn, r.channel = nil, nil
	r.mu.Unlock()

	for {
		select {
		case <-r.done:
			return false
		default:
		}

		err := r.connect()
		if err == nil {
			return true
		}
		log.Printf("Failed to reconnect: %v. Retrying in %v...", err, reconnectDelay)

		select {
		case <-r.done:
			return false
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, message interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return ErrNotConnected
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// NotifyStatusChange publishes the change for the notification consumer.
func (r *RabbitMQ) NotifyStatusChange(ctx context.Context, change model.StatusChange) error {
	if err := r.publish(ctx, RoutingKeyStatusUpdate, NewStatusUpdateMessage(change)); err != nil {
		return err
	}
	log.Printf("Published status update for complaint %d", change.ComplaintID)
	return nil
}

func (r *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return nil, ErrNotConnected
	}

	msgs, err := r.channel.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	return msgs, nil
}

func (r *RabbitMQ) Close() {
	r.closeOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
	r.conn, r.channel = nil, nil

	log.Println("RabbitMQ connection closed")
}
