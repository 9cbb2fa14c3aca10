package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/webhook"
)

const overdueSweepBatch = 100

// OverdueTaskStore — выборка просроченных задач для фонового обхода.
type OverdueTaskStore interface {
	ListOverdueUnnotified(ctx context.Context, now time.Time, limit int) ([]models.Task, error)
	MarkOverdueNotified(ctx context.Context, id uuid.UUID, at time.Time) error
}

// OutboxEnqueuer ставит системные события в outbox вне транзакции мутации.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, msg models.OutboxMessage) error
}

// OverdueSweeper периодически находит задачи с истёкшим сроком,
// которых никто не трогал, и ставит по ним task.overdue в outbox.
// Просрочка при мутациях ловится сервисом задач; обход закрывает
// задачи, лежащие без изменений.
type OverdueSweeper struct {
	tasks    OverdueTaskStore
	outbox   OutboxEnqueuer
	interval time.Duration
	now      func() time.Time
}

// NewOverdueSweeper создаёт обходчик просрочки.
func NewOverdueSweeper(tasks OverdueTaskStore, outbox OutboxEnqueuer, interval time.Duration) *OverdueSweeper {
	return &OverdueSweeper{
		tasks:    tasks,
		outbox:   outbox,
		interval: interval,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (s *OverdueSweeper) WithClock(now func() time.Time) *OverdueSweeper {
	s.now = now
	return s
}

// Run крутит обход до отмены контекста.
func (s *OverdueSweeper) Run(ctx context.Context) {
	log := logger.WithComponent("overdue_sweeper")
	log.WithField("interval", s.interval.String()).Info("обход просрочки запущен")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("обход просрочки остановлен")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				log.WithError(err).Error("обход просрочки завершился ошибкой")
			}
		}
	}
}

// Sweep делает один проход: на каждую найденную задачу ставит событие
// и помечает её уведомлённой, чтобы следующий проход её не трогал.
func (s *OverdueSweeper) Sweep(ctx context.Context) error {
	log := logger.WithComponent("overdue_sweeper")
	now := s.now()

	tasks, err := s.tasks.ListOverdueUnnotified(ctx, now, overdueSweepBatch)
	if err != nil {
		return err
	}

	for i := range tasks {
		task := tasks[i]
		msgs, err := buildTaskEvents(&task, []string{models.EventTaskOverdue}, webhook.TriggeredBySystem, nil)
		if err != nil {
			log.WithError(err).WithField("task_id", task.ID).Error("событие просрочки не собралось")
			continue
		}
		if err := s.outbox.Enqueue(ctx, msgs[0]); err != nil {
			log.WithError(err).WithField("task_id", task.ID).Error("событие просрочки не поставлено")
			continue
		}
		if err := s.tasks.MarkOverdueNotified(ctx, task.ID, now); err != nil {
			// Пометка не записалась: событие уйдёт ещё раз на следующем
			// проходе, доставка и так at-least-once.
			log.WithError(err).WithField("task_id", task.ID).Warn("пометка о просрочке не записалась")
			continue
		}
		log.WithField("task_id", task.ID).Info("просроченная задача уведомлена")
	}
	return nil
}
