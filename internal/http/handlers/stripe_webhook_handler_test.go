package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/service"
	"github.com/mis-sentinel/backend/internal/stripe"
)

type stubPartnerStore struct{}

func (stubPartnerStore) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Partner, error) {
	return nil, repository.ErrPartnerNotFound
}

func (stubPartnerStore) UpdateOnboarding(ctx context.Context, id uuid.UUID, detailsSubmitted, chargesEnabled, payoutsEnabled bool, disabledReason *string, status string) error {
	return nil
}

type stubLedgerStore struct{}

func (stubLedgerStore) RecordPayment(ctx context.Context, txn *models.Transaction) error { return nil }
func (stubLedgerStore) RecordFailure(ctx context.Context, txn *models.Transaction) error { return nil }
func (stubLedgerStore) RecordRefund(ctx context.Context, refund *models.Transaction, originalID uuid.UUID) error {
	return nil
}
func (stubLedgerStore) GetByChargeID(ctx context.Context, chargeID string) (*models.Transaction, error) {
	return nil, repository.ErrTransactionNotFound
}
func (stubLedgerStore) AttachCharge(ctx context.Context, paymentID, chargeID string) error {
	return nil
}
func (stubLedgerStore) MarkChargeFailed(ctx context.Context, paymentID, chargeID string, reason *string) error {
	return nil
}
func (stubLedgerStore) AttachTransfer(ctx context.Context, chargeID, transferID string) error {
	return nil
}
func (stubLedgerStore) UpsertPayout(ctx context.Context, payout *models.Payout) error { return nil }

func newWebhookTestRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewStripeWebhookHandler(
		stripe.NewVerifier(secret),
		service.NewReconciler(stubPartnerStore{}, stubLedgerStore{}),
	)
	r.POST("/webhooks/stripe", handler.Handle)
	return r
}

func TestStripeWebhookHandler_MissingSignature(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	req, _ := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookHandler_WrongSecret(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	req, _ := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(stripe.SignatureHeader, stripe.Sign("whsec_other", time.Now(), body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhookHandler_ValidSignatureAcked(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	// Событие без известного партнёра подтверждается, чтобы провайдер
	// не доставлял его повторно.
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","account":"acct_ghost","data":{"object":{"id":"pi_1","amount":1000,"currency":"usd"}}}`)
	req, _ := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(stripe.SignatureHeader, stripe.Sign("whsec_test", time.Now(), body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received": true}`, w.Body.String())
}

func TestStripeWebhookHandler_UnknownEventTypeAcked(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`{"id":"evt_2","type":"customer.created","data":{"object":{}}}`)
	req, _ := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(stripe.SignatureHeader, stripe.Sign("whsec_test", time.Now(), body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStripeWebhookHandler_MalformedBody(t *testing.T) {
	r := newWebhookTestRouter("whsec_test")

	body := []byte(`{"no_type": true}`)
	req, _ := http.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set(stripe.SignatureHeader, stripe.Sign("whsec_test", time.Now(), body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
