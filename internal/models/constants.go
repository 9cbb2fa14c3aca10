package models

// TaskStatus константы статусов задач
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusBlocked    = "blocked"
	TaskStatusCancelled  = "cancelled"
)

// TaskPriority константы приоритетов задач
const (
	TaskPriorityUrgent = "urgent"
	TaskPriorityHigh   = "high"
	TaskPriorityMedium = "medium"
	TaskPriorityLow    = "low"
)

// ValidTaskStatuses список валидных статусов задач
var ValidTaskStatuses = map[string]struct{}{
	TaskStatusPending:    {},
	TaskStatusInProgress: {},
	TaskStatusCompleted:  {},
	TaskStatusBlocked:    {},
	TaskStatusCancelled:  {},
}

// ValidTaskPriorities список валидных приоритетов
var ValidTaskPriorities = map[string]struct{}{
	TaskPriorityUrgent: {},
	TaskPriorityHigh:   {},
	TaskPriorityMedium: {},
	TaskPriorityLow:    {},
}

// TaskTransitions — таблица допустимых переходов статусов.
// completed и cancelled терминальные: из них переходов нет.
var TaskTransitions = map[string][]string{
	TaskStatusPending:    {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusBlocked, TaskStatusCancelled},
	TaskStatusBlocked:    {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusCompleted:  {},
	TaskStatusCancelled:  {},
}

// CanTransition проверяет допустимость перехода статуса по таблице.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range TaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Статусы партнёрских аккаунтов
const (
	PartnerStatusPending    = "pending"
	PartnerStatusActive     = "active"
	PartnerStatusRestricted = "restricted"
	PartnerStatusRejected   = "rejected"
	PartnerStatusInactive   = "inactive"
)

// Уровни партнёров. Каждому уровню соответствует фиксированная комиссионная ставка.
const (
	PartnerTierBronze   = "bronze"
	PartnerTierSilver   = "silver"
	PartnerTierGold     = "gold"
	PartnerTierPlatinum = "platinum"
)

// TierCommissionRates ставки комиссии по уровням.
var TierCommissionRates = map[string]float64{
	PartnerTierBronze:   0.10,
	PartnerTierSilver:   0.15,
	PartnerTierGold:     0.20,
	PartnerTierPlatinum: 0.25,
}

// Типы транзакций
const (
	TransactionTypePayment    = "payment"
	TransactionTypeRefund     = "refund"
	TransactionTypePayout     = "payout"
	TransactionTypeAdjustment = "adjustment"
)

// Статусы транзакций
const (
	TransactionStatusSucceeded = "succeeded"
	TransactionStatusFailed    = "failed"
	TransactionStatusCanceled  = "canceled"
	TransactionStatusRefunded  = "refunded"
)

// Статусы выплат
const (
	PayoutStatusPaid   = "paid"
	PayoutStatusFailed = "failed"
)

// Webhook события жизненного цикла задач
const (
	EventTaskCreated       = "task.created"
	EventTaskCompleted     = "task.completed"
	EventTaskBlocked       = "task.blocked"
	EventTaskOverdue       = "task.overdue"
	EventTaskDueSoon       = "task.due_soon"
	EventTaskStatusChanged = "task.status_changed"
)

// Статусы записей webhook outbox
const (
	OutboxStatusPending   = "pending"
	OutboxStatusDelivered = "delivered"
	OutboxStatusDead      = "dead"
)
