package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"delivery-service/internal/audit"
	"delivery-service/internal/db/queries"
	"delivery-service/internal/models"
	"delivery-service/internal/pricing"
	"delivery-service/internal/queue"
	"delivery-service/internal/rates"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

// Outcome представляет результат обработки одного сообщения
type Outcome int

const (
	// OutcomeProcessed — посылка создана и записана
	OutcomeProcessed Outcome = iota
	// OutcomeDiscarded — сообщение некорректно, повтор не поможет
	OutcomeDiscarded
	// OutcomeDuplicate — повторная доставка уже обработанного сообщения
	OutcomeDuplicate
	// OutcomeRetry — временный сбой, сообщение нужно обработать позже
	OutcomeRetry
)

// Worker обрабатывает сообщения регистрации посылок из очереди.
// Несколько экземпляров могут конкурентно читать одну очередь:
// вся координация лежит на уникальном ограничении хранилища.
type Worker struct {
	parcels     queries.ParcelQueriesInterface
	rates       rates.ProviderInterface
	audit       audit.Recorder
	maxAttempts int
}

// New создает новый экземпляр Worker.
// recorder может быть nil — тогда аудит отключен.
func New(parcels queries.ParcelQueriesInterface, ratesProvider rates.ProviderInterface, recorder audit.Recorder, maxAttempts int) *Worker {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		parcels:     parcels,
		rates:       ratesProvider,
		audit:       recorder,
		maxAttempts: maxAttempts,
	}
}

// ProcessMessage прогоняет тело сообщения через конвейер:
// разбор и валидация -> проверка типа -> расчет стоимости -> запись.
// Ошибка возвращается только вместе с OutcomeRetry.
func (w *Worker) ProcessMessage(ctx context.Context, body []byte) (Outcome, error) {
	var msg queue.RegisterMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("Discarding malformed message: %v", err)
		return OutcomeDiscarded, nil
	}
	if err := msg.Validate(); err != nil {
		log.Printf("Discarding invalid message: %v", err)
		return OutcomeDiscarded, nil
	}

	exists, err := w.parcels.ExistsType(ctx, msg.TypeID)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("failed to resolve parcel type: %w", err)
	}
	if !exists {
		log.Printf("Discarding message with unknown type_id %d", msg.TypeID)
		return OutcomeDiscarded, nil
	}

	// Поля уже проверены в Validate
	weight, _ := decimal.NewFromString(msg.WeightKg)
	content, _ := decimal.NewFromString(msg.ContentUSD)

	usdRub := w.rates.GetUSDRUB(ctx)
	cost := pricing.Cost(weight, content, usdRub)

	parcel := &models.Parcel{
		SessionID:       msg.SessionID,
		SessionPublicID: msg.SessionPublicID,
		Name:            msg.Name,
		WeightKg:        weight,
		TypeID:          msg.TypeID,
		ContentUSD:      content,
		CostRub:         decimal.NullDecimal{Decimal: cost, Valid: true},
	}

	created, err := w.parcels.CreateParcel(ctx, parcel)
	if err != nil {
		if errors.Is(err, queries.ErrParcelExists) {
			// Повторная доставка: строка уже есть, подтверждаем как no-op
			log.Printf("Duplicate message ignored: session=%s public_id=%s", msg.SessionID, msg.SessionPublicID)
			return OutcomeDuplicate, nil
		}
		return OutcomeRetry, fmt.Errorf("failed to persist parcel: %w", err)
	}

	// Аудит best-effort: его сбой не отменяет запись и не мешает подтверждению
	entry := audit.Entry{
		TS:         time.Now().UTC(),
		SessionID:  created.SessionID,
		ParcelID:   created.ID,
		TypeID:     created.TypeID,
		WeightKg:   weight,
		ContentUSD: content,
		USDRub:     usdRub,
		CostRub:    cost,
		Source:     audit.SourceWorker,
	}
	if err := w.audit.RecordCalc(ctx, entry); err != nil {
		log.Printf("Audit record failed: %v", err)
	}

	log.Printf("Parcel registered: id=%d session=%s public_id=%s cost_rub=%s", created.ID, created.SessionID, created.SessionPublicID, cost)
	return OutcomeProcessed, nil
}

// Run запускает последовательный цикл потребления из очереди.
// Подтверждение ручное, prefetch 1: брокер не выдаст воркеру новое
// сообщение, пока текущее не подтверждено.
func (w *Worker) Run(ctx context.Context, ch *amqp.Channel, publisher queue.PublisherInterface) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		queue.QueueName,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Println("Worker is consuming from queue " + queue.QueueName)

	for {
		select {
		case <-ctx.Done():
			// Дорабатываем текущее сообщение и выходим
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handleDelivery(ctx, delivery, publisher)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery, publisher queue.PublisherInterface) {
	outcome, err := w.ProcessMessage(ctx, delivery.Body)
	if outcome != OutcomeRetry {
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.Printf("Failed to ack message: %v", ackErr)
		}
		return
	}

	attempts := attemptsFromHeaders(delivery.Headers)
	if attempts >= int32(w.maxAttempts) {
		log.Printf("Message dropped after %d attempts: %v", attempts, err)
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.Printf("Failed to ack dropped message: %v", ackErr)
		}
		return
	}

	log.Printf("Transient failure (attempt %d/%d), retrying: %v", attempts, w.maxAttempts, err)
	if pubErr := publisher.PublishRetry(ctx, delivery.Body, attempts+1); pubErr != nil {
		// Не смогли переопубликовать — возвращаем сообщение брокеру
		log.Printf("Failed to republish message, requeueing: %v", pubErr)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			log.Printf("Failed to nack message: %v", nackErr)
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		log.Printf("Failed to ack retried message: %v", ackErr)
	}
}

// attemptsFromHeaders читает счетчик попыток из заголовков сообщения.
// Сообщение без заголовка считается первой попыткой.
func attemptsFromHeaders(headers amqp.Table) int32 {
	raw, ok := headers[queue.AttemptsHeader]
	if !ok {
		return 1
	}
	switch v := raw.(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 1
	}
}
