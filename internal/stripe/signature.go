package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader — имя заголовка с подписью вебхука провайдера.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance — допустимое расхождение метки времени подписи.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature   = errors.New("stripe: отсутствует заголовок подписи")
	ErrMalformedSignature = errors.New("stripe: некорректный формат подписи")
	ErrSignatureMismatch  = errors.New("stripe: подпись не совпадает")
	ErrSignatureExpired   = errors.New("stripe: метка времени подписи вне допуска")
)

// Verifier проверяет подписи входящих вебхуков по общему секрету.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier создаёт verifier с допуском по умолчанию.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени (для тестов).
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify проверяет подпись сырого тела запроса.
// Формат заголовка: "t=<unix>,v1=<hex hmac-sha256>"; подписывается
// строка "<t>.<body>". Сравнение постоянное по времени.
func (v *Verifier) Verify(payload []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	var timestamp int64 = -1
	var signatures [][]byte

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return ErrMalformedSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp < 0 || len(signatures) == 0 {
		return ErrMalformedSignature
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrSignatureExpired
	}

	expected := computeSignature(v.secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}

	return ErrSignatureMismatch
}

// Sign формирует валидный заголовок подписи для заданного тела.
// Используется в тестах и при имитации событий провайдера.
func Sign(secret string, timestamp time.Time, payload []byte) string {
	ts := timestamp.Unix()
	sig := computeSignature([]byte(secret), ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(sig))
}

func computeSignature(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
