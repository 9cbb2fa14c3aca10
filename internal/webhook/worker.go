package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/models"
)

// EventSender абстрагирует доставку одного события.
type EventSender interface {
	Send(ctx context.Context, payload []byte) error
}

// OutboxStore описывает операции воркера над таблицей outbox.
type OutboxStore interface {
	FetchDue(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id uuid.UUID, lastError string) error
}

const (
	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

// Worker — фоновый цикл доставки исходящих вебхуков.
// События ставятся в outbox в транзакции мутации; воркер доставляет их
// с экспоненциальным backoff и ограниченным числом попыток.
// Ошибки доставки никогда не видны вызывающему мутацию коду.
type Worker struct {
	store       OutboxStore
	sender      EventSender
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// NewWorker создаёт воркер outbox.
func NewWorker(store OutboxStore, sender EventSender, interval time.Duration, batchSize, maxAttempts int) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &Worker{
		store:       store,
		sender:      sender,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Run крутит цикл доставки до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.WithComponent("outbox")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info("outbox worker запущен")
	for {
		select {
		case <-ctx.Done():
			log.Info("outbox worker остановлен")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch доставляет одну пачку готовых событий.
// Возвращает количество успешно доставленных.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	log := logger.WithComponent("outbox")

	events, err := w.store.FetchDue(ctx, w.batchSize)
	if err != nil {
		log.WithError(err).Error("не удалось выбрать события из outbox")
		return 0
	}

	delivered := 0
	for _, evt := range events {
		raw, err := stampTimestamp(evt.Payload, w.now())
		if err != nil {
			// Payload не разбирается — повторы бессмысленны.
			log.WithError(err).WithField("event_id", evt.ID).Error("событие отправлено в dead letter")
			_ = w.store.MarkDead(ctx, evt.ID, err.Error())
			continue
		}

		if err := w.sender.Send(ctx, raw); err != nil {
			attempts := evt.Attempts + 1
			if attempts >= w.maxAttempts {
				log.WithError(err).WithField("event_id", evt.ID).
					WithField("attempts", attempts).Error("лимит попыток исчерпан, событие в dead letter")
				_ = w.store.MarkDead(ctx, evt.ID, err.Error())
				continue
			}

			next := w.now().Add(Backoff(attempts))
			log.WithError(err).WithField("event_id", evt.ID).
				WithField("attempts", attempts).Warn("доставка не удалась, повтор запланирован")
			_ = w.store.Reschedule(ctx, evt.ID, attempts, next, err.Error())
			continue
		}

		if err := w.store.MarkDelivered(ctx, evt.ID, w.now()); err != nil {
			log.WithError(err).WithField("event_id", evt.ID).Error("не удалось отметить доставку")
			continue
		}
		delivered++
	}

	return delivered
}

// Backoff возвращает задержку перед попыткой с номером attempt (с единицы).
// Экспоненциальный рост от baseBackoff с потолком maxBackoff.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
