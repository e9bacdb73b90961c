package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

const (
	// QueueName — имя долговечной очереди регистрации посылок
	QueueName = "register_parcel"

	// AttemptsHeader — заголовок сообщения со счетчиком попыток обработки
	AttemptsHeader = "x-attempts"

	messageType = "register_parcel"
)

// RegisterMessage представляет сообщение о регистрации посылки.
// Десятичные значения передаются строками, чтобы не терять точность.
type RegisterMessage struct {
	SessionID       string `json:"session_id"`
	SessionPublicID string `json:"session_public_id"`
	Name            string `json:"name"`
	WeightKg        string `json:"weight_kg"`
	TypeID          int    `json:"type_id"`
	ContentUSD      string `json:"content_usd"`
}

// Validate проверяет наличие и корректность обязательных полей сообщения
func (m *RegisterMessage) Validate() error {
	if m.SessionID == "" {
		return fmt.Errorf("missing session_id")
	}
	if m.SessionPublicID == "" {
		return fmt.Errorf("missing session_public_id")
	}
	if m.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(m.Name) > 300 {
		return fmt.Errorf("name is too long")
	}
	if m.TypeID <= 0 {
		return fmt.Errorf("invalid type_id: %d", m.TypeID)
	}

	weight, err := decimal.NewFromString(m.WeightKg)
	if err != nil {
		return fmt.Errorf("invalid weight_kg %q: %w", m.WeightKg, err)
	}
	if !weight.IsPositive() {
		return fmt.Errorf("weight_kg must be positive, got %q", m.WeightKg)
	}

	content, err := decimal.NewFromString(m.ContentUSD)
	if err != nil {
		return fmt.Errorf("invalid content_usd %q: %w", m.ContentUSD, err)
	}
	if content.IsNegative() {
		return fmt.Errorf("content_usd must be non-negative, got %q", m.ContentUSD)
	}

	return nil
}

// PublisherInterface определяет интерфейс публикации сообщений регистрации
type PublisherInterface interface {
	PublishRegister(ctx context.Context, msg *RegisterMessage) error
	PublishRetry(ctx context.Context, body []byte, attempts int32) error
}

// Publisher публикует сообщения в долговечную очередь регистрации
type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher создает новый экземпляр Publisher и объявляет очередь
func NewPublisher(ch *amqp.Channel) (*Publisher, error) {
	if _, err := DeclareQueue(ch); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

// DeclareQueue объявляет долговечную очередь регистрации посылок.
// Объявление идемпотентно, его выполняют и продюсер, и воркер.
func DeclareQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue: %w", err)
	}
	return q, nil
}

// PublishRegister публикует сообщение о регистрации посылки.
// Сообщение помечается persistent и переживает рестарт брокера.
func (p *Publisher) PublishRegister(ctx context.Context, msg *RegisterMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal register message: %w", err)
	}
	return p.publish(ctx, body, 1)
}

// PublishRetry повторно публикует тело сообщения с обновленным счетчиком попыток
func (p *Publisher) PublishRetry(ctx context.Context, body []byte, attempts int32) error {
	return p.publish(ctx, body, attempts)
}

func (p *Publisher) publish(ctx context.Context, body []byte, attempts int32) error {
	err := p.ch.PublishWithContext(ctx,
		"",        // exchange (default)
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         messageType,
			Headers:      amqp.Table{AttemptsHeader: attempts},
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Connect устанавливает соединение с брокером и открывает канал
func Connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}
