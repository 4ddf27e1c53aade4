package nvelope_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/muir/nhttp/nvelope"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFromStd(t *testing.T) {
	var buf bytes.Buffer
	l := nvelope.LoggerFromStd(log.New(&buf, "", 0))()
	l.Warn("slow", map[string]interface{}{"ms": 30, "path": "/x"})
	assert.Equal(t, "slow ms=30 path=/x\n", buf.String())
}

func TestLoggerFromZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := nvelope.LoggerFromZap(zap.New(core))
	l.Error("failed", map[string]interface{}{"status": 500})
	l.Debug("detail")
	l.Flush()
	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "failed", entries[0].Message)
		assert.Equal(t, int64(500), entries[0].ContextMap()["status"])
		assert.Equal(t, "detail", entries[1].Message)
	}
	nvelope.LoggerFromZap(nil).Error("discarded")
}
