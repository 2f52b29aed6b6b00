// Package notify publishes notifications, emails and chat room requests to
// Kafka topics consumed by the delivery services.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/gigbook/backend/internal/models"
)

// Notifier sends an in-app notification about a booking.
type Notifier interface {
	Notify(ctx context.Context, kind models.BookingEvent, account *models.Account, b *models.Booking) error
}

// Mailer sends a templated email.
type Mailer interface {
	Send(ctx context.Context, template string, recipients []string, data map[string]any) error
}

// ChatRooms opens the booker/performer conversation of a paid booking.
type ChatRooms interface {
	CreateRoom(ctx context.Context, b *models.Booking) error
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Topics struct {
	Notifications string
	Emails        string
	ChatRooms     string
}

type Notification struct {
	Kind      models.BookingEvent  `json:"kind"`
	AccountID uuid.UUID            `json:"account_id"`
	BookingID uuid.UUID            `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

type Email struct {
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	Data       map[string]any `json:"data"`
}

type ChatRoom struct {
	BookingID uuid.UUID   `json:"booking_id"`
	Members   []uuid.UUID `json:"members"`
}

// Publisher implements Notifier, Mailer and ChatRooms on top of Kafka.
type Publisher struct {
	writer MessageWriter
	topics Topics
}

// NewKafkaWriter returns a writer without a default topic; every message names its own.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewPublisher(w MessageWriter, topics Topics) *Publisher {
	return &Publisher{writer: w, topics: topics}
}

var (
	_ Notifier  = (*Publisher)(nil)
	_ Mailer    = (*Publisher)(nil)
	_ ChatRooms = (*Publisher)(nil)
)

func (p *Publisher) publish(ctx context.Context, topic string, key []byte, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Notify(ctx context.Context, kind models.BookingEvent, account *models.Account, b *models.Booking) error {
	n := Notification{
		Kind:      kind,
		AccountID: account.ID,
		BookingID: b.ID,
		Status:    b.Status,
		CreatedAt: time.Now().UTC(),
	}
	return p.publish(ctx, p.topics.Notifications, []byte(account.ID.String()), n)
}

func (p *Publisher) Send(ctx context.Context, template string, recipients []string, data map[string]any) error {
	if len(recipients) == 0 {
		return nil
	}
	return p.publish(ctx, p.topics.Emails, []byte(template), Email{Template: template, Recipients: recipients, Data: data})
}

func (p *Publisher) CreateRoom(ctx context.Context, b *models.Booking) error {
	room := ChatRoom{BookingID: b.ID, Members: []uuid.UUID{b.BookerID, b.PerformerID}}
	return p.publish(ctx, p.topics.ChatRooms, []byte(b.ID.String()), room)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
