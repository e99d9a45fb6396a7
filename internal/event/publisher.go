package event

import (
	"encoding/json"
	"time"

	"github.com/streadway/amqp"

	"cat-engine/internal/pkg/logger"
)

// Routing keys published on the topic exchange.
const (
	SessionStarted   = "cat.session.started"
	SessionCompleted = "cat.session.completed"
	SessionExpired   = "cat.session.expired"
	SessionCancelled = "cat.session.cancelled"
	ItemAnswered     = "cat.session.answered"
	RunCreated       = "cat.calibration.run.created"
	RunFinished      = "cat.calibration.run.finished"
	ItemPromoted     = "cat.calibration.item.promoted"
)

// Publisher pushes domain events to a durable topic exchange. Downstream
// consumers (reporting, notifications) bind their own queues.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logger.Logger
}

func NewPublisher(amqpURL, exchange string, log *logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

// Publish sends one event. The routing key doubles as the event type.
func (p *Publisher) Publish(routingKey string, payload interface{}) error {
	event := map[string]interface{}{
		"type":        routingKey,
		"payload":     payload,
		"occurred_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		p.log.Error("publish event failed", "routing_key", routingKey, "error", err)
		return err
	}
	p.log.Debug("event published", "routing_key", routingKey)
	return nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
