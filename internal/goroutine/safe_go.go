package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/mis-sentinel/backend/internal/logger"
)

// Logger — приёмник сообщений о панике в фоновой горутине.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// RecoveryHandler перехватывает panic в фоновых горутинах, чтобы
// падение воркера не роняло процесс целиком.
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создаёт обработчик с заданным логгером.
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает fn в горутине с перехватом panic.
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer rh.recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает fn с контекстом и перехватом panic.
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer rh.recoverPanic()
		fn(ctx)
	}()
}

func (rh *RecoveryHandler) recoverPanic() {
	if r := recover(); r != nil {
		rh.logger.Errorf("паника в фоновой горутине: %v\n%s", r, debug.Stack())
	}
}

// logrusLogger пишет паники в общий логгер сервиса. Логгер берётся
// в момент вызова: переинициализация в main подхватывается.
type logrusLogger struct{}

func (logrusLogger) Errorf(format string, args ...interface{}) {
	logger.WithComponent("goroutine").Errorf(format, args...)
}

// DefaultRecoveryHandler — обработчик по умолчанию поверх logrus.
var DefaultRecoveryHandler = NewRecoveryHandler(logrusLogger{})

// SafeGo запускает безопасную горутину через обработчик по умолчанию.
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext — то же с контекстом.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}
