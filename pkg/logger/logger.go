package logger

import (
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// Logger agrupa as raízes de log do processo. App alimenta os
// subsistemas via Sub(); HTTP fica separado para o access log.
type Logger struct {
	App  waLog.Logger
	HTTP waLog.Logger
}

func New(level string) *Logger {
	level = strings.ToUpper(strings.TrimSpace(level))
	switch level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		level = "INFO"
	}
	app := waLog.Stdout("App", level, true)
	return &Logger{
		App:  app,
		HTTP: app.Sub("HTTP"),
	}
}

// InitForTests devolve raízes mudas para não poluir a saída do go test.
func InitForTests() *Logger {
	return &Logger{App: waLog.Noop, HTTP: waLog.Noop}
}
