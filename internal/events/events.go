// Package events publishes won bids to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// BidEvent is emitted once per won bid.
type BidEvent struct {
	RequestID  string    `json:"requestId"`
	BidID      int64     `json:"bidId"`
	CampaignID int64     `json:"campaignId"`
	Amount     float64   `json:"amount"`
	PlacedAt   time.Time `json:"placedAt"`
}

// Publisher delivers bid events.
type Publisher interface {
	PublishBid(ctx context.Context, e BidEvent) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishBid(context.Context, BidEvent) error { return nil }

func (Nop) Close() error { return nil }

// AMQPPublisher sends events as JSON to a durable fanout exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// DialAMQP connects to url and declares exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Exchange returns the exchange events are published to.
func (p *AMQPPublisher) Exchange() string {
	return p.exchange
}

func (p *AMQPPublisher) PublishBid(ctx context.Context, e BidEvent) error {
	msg, err := newPublishing(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, msg); err != nil {
		return fmt.Errorf("publishing bid %d: %w", e.BidID, err)
	}

	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}

	return p.conn.Close()
}

func newPublishing(e BidEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encoding bid event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.RequestID,
		Timestamp:    e.PlacedAt,
		Type:         "bid.won",
		Body:         body,
	}, nil
}
