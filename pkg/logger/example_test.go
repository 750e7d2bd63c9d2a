package logger_test

import (
	"log/slog"

	"github.com/soundprediction/groundgraph/pkg/logger"
)

func ExampleNewDefaultLogger() {
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Debug("Resolving focus entities")
	log.Info("Upserting entity", "name", "NVIDIA") // green in terminal
	log.Warn("Ambiguous entity match", "raw", "Nvidia Corp", "score", 0.83)
	log.Error("Graph store unavailable", "error", "timeout")
}
