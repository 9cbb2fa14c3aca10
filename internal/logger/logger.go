package logger

import (
	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// Init инициализирует структурированный логгер.
// JSON формат для production, текстовый — для development.
func Init(level, env string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if env == "development" {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// WithComponent возвращает entry с полем component для логов подсистем
// (dispatcher, reconciler, outbox).
func WithComponent(name string) *logrus.Entry {
	if Log == nil {
		Init("info", "development")
	}
	return Log.WithField("component", name)
}
