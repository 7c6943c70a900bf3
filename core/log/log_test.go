package log

import (
	"testing"

	"github.com/geoffjay/dispatchd/core/config"
	stdlog "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func setupTest() (stdlog.Level, stdlog.Formatter) {
	return stdlog.GetLevel(), stdlog.StandardLogger().Formatter
}

func teardownTest(level stdlog.Level, formatter stdlog.Formatter) {
	stdlog.SetLevel(level)
	stdlog.SetFormatter(formatter)
	stdlog.StandardLogger().ReplaceHooks(make(stdlog.LevelHooks))
}

func TestInitializeTextFormatter(t *testing.T) {
	level, formatter := setupTest()
	defer teardownTest(level, formatter)

	Initialize(config.LogConfig{Level: "info", Formatter: "text"})

	assert.Equal(t, stdlog.InfoLevel, stdlog.GetLevel())
	assert.IsType(t, &stdlog.TextFormatter{}, stdlog.StandardLogger().Formatter)
}

func TestInitializeJSONFormatter(t *testing.T) {
	level, formatter := setupTest()
	defer teardownTest(level, formatter)

	Initialize(config.LogConfig{Level: "debug", Formatter: "json"})

	assert.Equal(t, stdlog.DebugLevel, stdlog.GetLevel())
	assert.IsType(t, &stdlog.JSONFormatter{}, stdlog.StandardLogger().Formatter)
}

func TestInitializeInvalidLevel(t *testing.T) {
	level, formatter := setupTest()
	defer teardownTest(level, formatter)

	Initialize(config.LogConfig{Level: "not-a-level", Formatter: "text"})

	assert.Equal(t, level, stdlog.GetLevel())
}

func TestInitializeEmptyFormatterDefaultsToText(t *testing.T) {
	level, formatter := setupTest()
	defer teardownTest(level, formatter)

	Initialize(config.LogConfig{Level: "info"})

	assert.IsType(t, &stdlog.TextFormatter{}, stdlog.StandardLogger().Formatter)
}

func TestInitializeLokiHookRegistersLevels(t *testing.T) {
	level, formatter := setupTest()
	defer teardownTest(level, formatter)

	stdlog.StandardLogger().ReplaceHooks(make(stdlog.LevelHooks))

	Initialize(config.LogConfig{
		Level:     "info",
		Formatter: "json",
		Loki: config.LokiConfig{
			Address: "http://localhost:3100",
			Labels:  map[string]string{"service": "dispatchd-test"},
		},
	})

	hooks := stdlog.StandardLogger().Hooks
	assert.NotEmpty(t, hooks)
}

func TestInitializeMinimalConfigDoesNotPanic(t *testing.T) {
	level, formatter := setupTest()
	defer teardownTest(level, formatter)

	assert.NotPanics(t, func() {
		Initialize(config.LogConfig{})
	})
}
