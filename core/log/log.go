// Package log initializes the process-wide logrus logger used by every
// dispatchd node, mirroring plantd's core/log package (its behavior is
// pinned down by core/log/log_test.go even though its source was not kept
// in the retrieval pack).
package log

import (
	"strings"

	"github.com/geoffjay/dispatchd/core/config"
	log "github.com/sirupsen/logrus"
	"github.com/yukitsune/lokirus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Initialize configures the standard logrus logger's level, formatter, and
// (if a Loki address is set) a lokirus hook. An unrecognized level string is
// ignored, leaving the current level untouched, matching the
// TestInitializeInvalidLevel expectation.
func Initialize(cfg config.LogConfig) {
	if cfg.Level != "" {
		if level, err := log.ParseLevel(cfg.Level); err == nil {
			log.SetLevel(level)
		}
	}

	switch strings.ToLower(cfg.Formatter) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	if cfg.Loki.Address != "" {
		hook := lokirus.NewLokiHookWithOpts(
			cfg.Loki.Address,
			lokirus.NewLokiHookOptions().
				WithLevelMap(lokirus.LevelMap{
					log.InfoLevel:  "info",
					log.WarnLevel:  "warning",
					log.ErrorLevel: "error",
					log.FatalLevel: "fatal",
				}).
				WithFormatter(&log.JSONFormatter{}).
				WithStaticLabels(lokirus.Labels(cfg.Loki.Labels)),
		)
		log.AddHook(hook)
	}
}
