package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tbourn/turnos-backend/internal/domain"
)

// EventTypeBooked names the integration event emitted for every booking.
const EventTypeBooked = "appointment.booked"

// BookedEvent is the payload published to the queue and the stream.
type BookedEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	AppointmentID uint64    `json:"appointment_id"`
	Name          string    `json:"name"`
	WhatsApp      string    `json:"whatsapp"`
	Date          string    `json:"date"`
	Hour          int       `json:"hour"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewBookedEvent stamps a fresh event id.
func NewBookedEvent(a domain.Appointment) BookedEvent {
	return BookedEvent{
		EventID:       uuid.NewString(),
		EventType:     EventTypeBooked,
		AppointmentID: a.ID,
		Name:          a.Name,
		WhatsApp:      a.Contact,
		Date:          a.AppointmentDate,
		Hour:          a.AppointmentHour,
		OccurredAt:    time.Now().UTC(),
	}
}

// AMQPPublisher publishes BookedEvent messages to a durable RabbitMQ queue
// through the default exchange. It dials per message; booking volume is low
// and a broker outage never leaves a dead connection behind.
type AMQPPublisher struct {
	URL   string
	Queue string

	dial func(url string) (*amqp.Connection, error)
}

// NewAMQPPublisher returns a publisher for queue at url.
func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Queue: queue, dial: amqp.Dial}
}

func (p *AMQPPublisher) Name() string { return "rabbitmq" }

func (p *AMQPPublisher) Send(ctx context.Context, a domain.Appointment) error {
	body, err := json.Marshal(NewBookedEvent(a))
	if err != nil {
		return err
	}

	conn, err := p.dial(p.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	return ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         EventTypeBooked,
		Body:         body,
	})
}
