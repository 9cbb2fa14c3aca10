package stripe

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий провайдера, обрабатываемые реконсилятором.
const (
	EventAccountUpdated   = "account.updated"
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
	EventChargeSucceeded  = "charge.succeeded"
	EventChargeFailed     = "charge.failed"
	EventChargeRefunded   = "charge.refunded"
	EventTransferCreated  = "transfer.created"
	EventTransferUpdated  = "transfer.updated"
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
)

// Event — конверт вебхука провайдера.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Account string `json:"account,omitempty"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent разбирает сырое тело вебхука в конверт события.
func ParseEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("stripe: не удалось распарсить событие: %w", err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("stripe: событие без типа")
	}
	return &evt, nil
}

// UnmarshalObject разбирает data.object события в целевой тип.
func UnmarshalObject(evt *Event, dst interface{}) error {
	if len(evt.Data.Object) == 0 {
		return fmt.Errorf("stripe: событие %s без объекта", evt.Type)
	}
	if err := json.Unmarshal(evt.Data.Object, dst); err != nil {
		return fmt.Errorf("stripe: не удалось разобрать объект события %s: %w", evt.Type, err)
	}
	return nil
}

// Account — объект аккаунта из события account.updated.
type Account struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	Requirements     struct {
		DisabledReason string `json:"disabled_reason"`
	} `json:"requirements"`
}

// PaymentIntent — объект платежа.
type PaymentIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
	LatestCharge string            `json:"latest_charge"`
}

// Charge — объект списания.
type Charge struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Refunded       bool              `json:"refunded"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

// Transfer — объект перевода на подключённый аккаунт.
type Transfer struct {
	ID                string `json:"id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Destination       string `json:"destination"`
	SourceTransaction string `json:"source_transaction"`
}

// Payout — объект выплаты партнёру.
type Payout struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	FailureMessage string `json:"failure_message"`
	ArrivalDate    int64  `json:"arrival_date"`
}

// ArrivalTime возвращает дату прибытия выплаты как time.Time.
func (p Payout) ArrivalTime() *time.Time {
	if p.ArrivalDate == 0 {
		return nil
	}
	t := time.Unix(p.ArrivalDate, 0).UTC()
	return &t
}
