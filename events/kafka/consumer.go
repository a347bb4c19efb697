package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const allSessionsKey = "*"

// Subscription delivers session events to one client. A zero SessionID (the
// wildcard) receives every event on the topic.
type Subscription struct {
	ID        string
	SessionID uint64
	Channel   chan SessionEvent
}

// Consumer reads the session event topic and fans events out to
// subscribers. This is the read path other module instances and the lobby
// feed use.
type Consumer struct {
	reader *kafka.Reader
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	subscribers map[string][]*Subscription
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Logger        zerolog.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config ConsumerConfig) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{
		reader:      reader,
		logger:      config.Logger.With().Str("component", "kafka-consumer").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[string][]*Subscription),
	}
}

// Start begins consuming messages
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	c.logger.Info().Msg("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info().Msg("Stopping Kafka consumer...")
	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing Kafka reader")
		return err
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return nil
}

// Subscribe registers for events of one session; sessionID 0 subscribes to
// every session.
func (c *Consumer) Subscribe(sessionID uint64, buffer int) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Channel:   make(chan SessionEvent, buffer),
	}

	key := subscriptionKey(sessionID)
	c.mu.Lock()
	c.subscribers[key] = append(c.subscribers[key], sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Consumer) Unsubscribe(sub *Subscription) {
	key := subscriptionKey(sub.SessionID)
	c.mu.Lock()
	subs := c.subscribers[key]
	for i, s := range subs {
		if s.ID == sub.ID {
			c.subscribers[key] = append(subs[:i], subs[i+1:]...)
			close(s.Channel)
			break
		}
	}
	c.mu.Unlock()
}

func subscriptionKey(sessionID uint64) string {
	if sessionID == 0 {
		return allSessionsKey
	}
	return strconv.FormatUint(sessionID, 10)
}

// consume is the main consumer loop
func (c *Consumer) consume() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			msg, err := c.reader.FetchMessage(c.ctx)
			if err != nil {
				if err == context.Canceled {
					return
				}
				c.logger.Error().Err(err).Msg("Error fetching message from Kafka")
				time.Sleep(time.Second)
				continue
			}

			if err := c.handleMessage(msg); err != nil {
				c.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("Error handling message")
			}

			if err := c.reader.CommitMessages(c.ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("Error committing message")
			}
		}
	}
}

// handleMessage decodes one session event and fans it out.
func (c *Consumer) handleMessage(msg kafka.Message) error {
	var event SessionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	c.deliver(c.subscribers[subscriptionKey(event.SessionID)], event)
	c.deliver(c.subscribers[allSessionsKey], event)
	return nil
}

func (c *Consumer) deliver(subs []*Subscription, event SessionEvent) {
	for _, sub := range subs {
		select {
		case sub.Channel <- event:
		default:
			c.logger.Warn().
				Str("sub_id", sub.ID).
				Uint64("session_id", event.SessionID).
				Msg("Subscriber channel full, dropping event")
		}
	}
}
