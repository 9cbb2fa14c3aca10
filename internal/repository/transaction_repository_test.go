package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "idx_transactions_payment_unique"}

	if !isUniqueViolation(dup) {
		t.Fatalf("код 23505 должен распознаваться как дубликат")
	}
	if !isUniqueViolation(fmt.Errorf("insert: %w", dup)) {
		t.Fatalf("обёрнутая ошибка 23505 должна распознаваться как дубликат")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Fatalf("нарушение внешнего ключа — не дубликат")
	}
	if isUniqueViolation(errors.New("connection reset")) {
		t.Fatalf("прочие ошибки не должны считаться дубликатом")
	}
	if isUniqueViolation(nil) {
		t.Fatalf("nil — не ошибка")
	}
}
