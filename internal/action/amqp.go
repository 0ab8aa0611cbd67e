package action

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

type AMQPPayload struct {
	Exchange    string          `json:"exchange"`
	RoutingKey  string          `json:"routing_key" validate:"required"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// *amqp.Channel satisfies this.
type amqpPublisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQP struct {
	mu    sync.Mutex
	ch    amqpPublisher
	clock func() time.Time
}

func NewAMQP(ch amqpPublisher) *AMQP {
	return &AMQP{ch: ch, clock: time.Now}
}

// DialAMQP opens a connection and a channel. The caller closes the connection.
func DialAMQP(url string) (*amqp.Connection, *AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return conn, NewAMQP(ch), nil
}

func (a *AMQP) Execute(ctx context.Context, raw json.RawMessage) Outcome {
	var p AMQPPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Failure("decode amqp payload: %v", err)
	}
	if err := validate.Struct(p); err != nil {
		return Failure("invalid amqp payload: %v", err)
	}
	if p.ContentType == "" {
		p.ContentType = "application/json"
	}

	msg := amqp.Publishing{
		ContentType:  p.ContentType,
		DeliveryMode: amqp.Persistent,
		Timestamp:    a.clock().UTC(),
		Body:         p.Body,
	}
	if f, ok := FiringFromContext(ctx); ok {
		msg.MessageId = f.Key()
	}
	if err := ctx.Err(); err != nil {
		return RetrySoon("%v", err)
	}

	// Publishing on one channel from several goroutines interleaves frames.
	a.mu.Lock()
	err := a.ch.Publish(p.Exchange, p.RoutingKey, false, false, msg)
	a.mu.Unlock()
	if err != nil {
		return RetrySoon("publish to %q/%q: %v", p.Exchange, p.RoutingKey, err)
	}
	return Success()
}
