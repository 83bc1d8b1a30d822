// Package events publishes domain events for downstream consumers such as
// budget tracking and notification services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

const (
	// DefaultExchange is the topic exchange events go to
	DefaultExchange = "ordo.orders"

	// OrderPlacedRoutingKey is published once per persisted checkout
	OrderPlacedRoutingKey = "order.placed"
)

// Publisher sends domain events
type Publisher interface {
	OrderPlaced(ctx context.Context, order *models.Order) error
	Close() error
}

// VendorOrderSummary is one vendor's part of an OrderPlaced event
type VendorOrderSummary struct {
	Vendor        models.VendorSlug `json:"vendor"`
	VendorOrderID string            `json:"vendorOrderId"`
	TotalAmount   decimal.Decimal   `json:"totalAmount"`
	ItemCount     int               `json:"itemCount"`
}

// OrderPlaced is the body of an order.placed message
type OrderPlaced struct {
	OrderID     string               `json:"orderId"`
	OfficeID    string               `json:"officeId"`
	OrderDate   time.Time            `json:"orderDate"`
	TotalAmount decimal.Decimal      `json:"totalAmount"`
	Vendors     []VendorOrderSummary `json:"vendors"`
}

// NewOrderPlaced builds the event body for order
func NewOrderPlaced(order *models.Order) OrderPlaced {
	event := OrderPlaced{
		OrderID:     order.ID,
		OfficeID:    order.OfficeID,
		OrderDate:   order.OrderDate,
		TotalAmount: order.TotalAmount,
		Vendors:     make([]VendorOrderSummary, 0, len(order.VendorOrders)),
	}
	for _, vo := range order.VendorOrders {
		count := 0
		for _, item := range vo.Items {
			count += item.Quantity
		}
		event.Vendors = append(event.Vendors, VendorOrderSummary{
			Vendor:        vo.Vendor,
			VendorOrderID: vo.VendorOrderID,
			TotalAmount:   vo.TotalAmount,
			ItemCount:     count,
		})
	}
	return event
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) OrderPlaced(context.Context, *models.Order) error { return nil }
func (Noop) Close() error                                     { return nil }

// Config holds the broker settings
type Config struct {
	URL      string
	Exchange string
}

// RabbitPublisher publishes events to a RabbitMQ topic exchange
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *logging.Logger
}

// NewRabbitPublisher connects to the broker and declares the exchange
func NewRabbitPublisher(cfg Config, logger *logging.Logger) (*RabbitPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 0; attempt < 3; attempt++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		wait := time.Duration(attempt+1) * time.Second
		logger.Warn("Failed to connect to RabbitMQ, retrying", logging.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"wait":    wait.String(),
			"error":   err.Error(),
		}))
		time.Sleep(wait)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = channel.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	return &RabbitPublisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

func (p *RabbitPublisher) OrderPlaced(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, OrderPlacedRoutingKey, NewOrderPlaced(order))
}

func (p *RabbitPublisher) publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", routingKey, p.exchange, err)
	}

	p.logger.Debug("Published event", logging.WithFields(map[string]interface{}{
		"exchange":    p.exchange,
		"routing_key": routingKey,
	}))
	return nil
}

// Close closes the channel and connection
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
