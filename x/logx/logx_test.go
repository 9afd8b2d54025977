package logx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerFormatsModuleAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(&buf, slog.LevelDebug)).With(ModuleKey, "ota")

	log.Warn("Firmware has failed", "count", 2, "max", 3)
	log.Debug("Connecting", "ssid", "home net")

	assert.Equal(t,
		"WARN [ota] Firmware has failed count=2 max=3\n"+
			"DEBUG [ota] Connecting ssid=\"home net\"\n",
		buf.String())
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(&buf, slog.LevelInfo))

	log.Debug("hidden")
	log.Error("shown")

	assert.Equal(t, "ERROR [?] shown\n", buf.String())
}

func TestDiscardDropsEverything(t *testing.T) {
	log := slog.New(Discard())
	log.Error("nothing")
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}

func TestInstallFollowsConsole(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Install(&buf, slog.LevelInfo, true)
	Module("wifi").Info("Connected", "ssid", "home")
	assert.Equal(t, "INFO [wifi] Connected ssid=home\n", buf.String())

	buf.Reset()
	Install(&buf, slog.LevelDebug, false)
	Module("wifi").Error("dropped")
	assert.Empty(t, buf.String())
}
