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
	"github.com/redis/go-redis/v9"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	maxRetryAttempts = 3
	initialDelay     = 1 * time.Second
	maxDelay         = 30 * time.Second
	dedupeTTL        = 24 * time.Hour
)

// Deduper remembers delivered message ids.
type Deduper interface {
	// FirstDelivery reports whether id has not been seen before and marks it seen.
	FirstDelivery(ctx context.Context, id string) (bool, error)
}

// RedisDeduper marks message ids with SETNX and a TTL.
type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, "notification:"+id, 1, dedupeTTL).Result()
}

type StatusHandler func(ctx context.Context, change model.StatusChange) error

// StatusConsumer delivers queued status changes to a handler, retrying with
// backoff and dead-lettering messages that keep failing.
type StatusConsumer struct {
	rmq      *RabbitMQ
	handler  StatusHandler
	deduper  Deduper
	attempts uint
	delay    time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewStatusConsumer(rmq *RabbitMQ, handler StatusHandler, deduper Deduper) *StatusConsumer {
	return &StatusConsumer{
		rmq:      rmq,
		handler:  handler,
		deduper:  deduper,
		attempts: maxRetryAttempts,
		delay:    initialDelay,
		done:     make(chan struct{}),
	}
}

func (c *StatusConsumer) Start() {
	c.wg.Add(1)
	go c.consume()
	log.Println("Status notification consumer started")
}

func (c *StatusConsumer) consume() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			log.Printf("consumer %s: stopping", QueueName)
			return
		default:
			msgs, err := c.rmq.Consume()
			if err != nil {
				log.Printf("consumer %s: error %v, retrying in %v...", QueueName, err, reconnectDelay)
				select {
				case <-c.done:
					return
				case <-time.After(reconnectDelay):
				}
				continue
			}

			log.Printf("consumer %s: listening for messages", QueueName)
			c.processQueue(msgs)
		}
	}
}

func (c *StatusConsumer) processQueue(msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Printf("consumer %s: channel closed, reconnecting...", QueueName)
				return
			}
			c.process(msg)
		}
	}
}

// process acks on success or duplicate and nacks without requeue (to the
// dead-letter queue) on malformed bodies or exhausted retries.
func (c *StatusConsumer) process(msg amqp.Delivery) {
	ctx := context.Background()

	var body StatusUpdateMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		log.Printf("%s: bad json, sending to DLQ: %v", QueueName, err)
		_ = msg.Nack(false, false)
		return
	}

	if c.deduper != nil && msg.MessageId != "" {
		first, err := c.deduper.FirstDelivery(ctx, msg.MessageId)
		if err != nil {
			log.Printf("%s: idempotency check failed: %v", QueueName, err)
		} else if !first {
			log.Printf("%s: %s already processed", QueueName, msg.MessageId)
			_ = msg.Ack(false)
			return
		}
	}

	err := retry.Do(
		func() error {
			err := c.handler(ctx, body.StatusChange())
			if errors.Is(err, model.ErrValidation) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("%s: retry %d for complaint %d: %v", QueueName, n+1, body.ComplaintID, err)
		}),
	)
	if err != nil {
		log.Printf("%s: failed, sending to DLQ: %v", QueueName, fmt.Errorf("complaint %d: %w", body.ComplaintID, err))
		_ = msg.Nack(false, false)
		return
	}

	_ = msg.Ack(false)
}

func (c *StatusConsumer) Stop() {
	close(c.done)
	c.wg.Wait()
	log.Println("Status notification consumer stopped")
}
