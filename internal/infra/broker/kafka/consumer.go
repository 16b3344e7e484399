package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer runs a sarama consumer group until its context ends.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	ready   func(bool)
}

// NewConsumer joins groupID. ready, when set, is told when a session starts
// and ends.
func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, ready func(bool)) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("kafka: message handler required")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return newConsumer(g, handler, ready), nil
}

func newConsumer(g sarama.ConsumerGroup, handler MessageHandler, ready func(bool)) *Consumer {
	if ready == nil {
		ready = func(bool) {}
	}
	return &Consumer{group: g, handler: handler, ready: ready}
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{handler: c.handler, ready: c.ready}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	ready   func(bool)
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.ready(true)
	return nil
}

func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.ready(false)
	return nil
}

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handler.Handle(sess.Context(), message); err != nil {
			// left unmarked; redelivered after a rebalance
			continue
		}
		sess.MarkMessage(message, "")
	}
	return nil
}
