package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPackageHelpersWriteToReplacedLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))
	t.Cleanup(func() { Init(false) })

	Infof("queued %d tasks", 3)
	Warn("careful")
	Named("scheduler").Errorf("task %s failed", "abc")

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "queued 3 tasks", entries[0].Message)
		assert.Equal(t, zap.WarnLevel, entries[1].Level)
		assert.Equal(t, "scheduler", entries[2].LoggerName)
		assert.Equal(t, "task abc failed", entries[2].Message)
	}
}

func TestDisableSilencesOutput(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Replace(zap.New(core))
	t.Cleanup(func() {
		Enable()
		Init(false)
	})

	Disable()
	Info("hidden")
	Enable()
	Info("visible")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "visible", logs.All()[0].Message)
}
