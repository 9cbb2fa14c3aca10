package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender отправляет события вебхуков на настроенный endpoint автоматизации.
type Sender struct {
	url    string
	client *http.Client
}

// NewSender создаёт sender с таймаутом на весь запрос.
func NewSender(url string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send выполняет POST с JSON телом. Любой статус вне 2xx считается ошибкой
// доставки — решение о повторе принимает вызывающий (outbox worker).
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	if s.url == "" {
		return fmt.Errorf("webhook: endpoint не настроен")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: не удалось создать запрос: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: ошибка отправки: %w", err)
	}
	defer func() {
		// Вычитываем тело, чтобы соединение вернулось в пул.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: endpoint ответил статусом %d", resp.StatusCode)
	}

	return nil
}
