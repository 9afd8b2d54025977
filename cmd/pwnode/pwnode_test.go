package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelweather-go/platform"
	"pixelweather-go/platform/sim"
	"pixelweather-go/types"
)

func startServer(t *testing.T, releases, settings string) string {
	t.Helper()
	h, err := newServerHandler(releases, settings, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/pwmp"
}

func TestSimulatedUpdateLifecycle(t *testing.T) {
	dir := t.TempDir()
	releases := filepath.Join(dir, "releases")
	settings := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("ota: true\nsleep_time: 120\n"), 0o644))

	machine := filepath.Join(dir, "node")
	require.NoError(t, initMachine(machine, "v1.4.0-0-g0000000", sim.DefaultScenario()))
	token, err := publish(releases, "1.5.0", []byte("new firmware"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v1.5.0-0-g"))

	o := nodeOptions{dir: machine, board: "sim", serverURL: startServer(t, releases, settings)}

	out, err := bootOnce(context.Background(), o, false)
	require.NoError(t, err)
	assert.Equal(t, platform.Outcome{Kind: platform.Sleep, Duration: 120 * time.Second}, out)

	flash, next, _, err := sim.Peek(machine)
	require.NoError(t, err)
	assert.Equal(t, types.ResetDeepSleep, next)
	assert.Equal(t, 1, flash.Boot)
	assert.Equal(t, token, flash.Slots[1].Version)

	out, err = bootOnce(context.Background(), o, false)
	require.NoError(t, err)
	assert.Equal(t, platform.Sleep, out.Kind)

	var buf bytes.Buffer
	require.NoError(t, printStatus(&buf, machine))
	status := buf.String()
	assert.Contains(t, status, "ota_1  valid")
	assert.Contains(t, status, token)
	assert.Contains(t, status, "failures=0 report_pending=false")
	assert.Contains(t, status, "last error:     none")
	assert.Contains(t, status, "sleep=2m0s ota=true")
}

func TestOfflineNodeRecordsError(t *testing.T) {
	dir := t.TempDir()
	sc := sim.DefaultScenario()
	sc.Networks = nil
	require.NoError(t, initMachine(dir, "v1.4.0-0-g0000000", sc))

	out, err := bootOnce(context.Background(), nodeOptions{dir: dir, board: "sim"}, false)
	require.NoError(t, err)
	assert.Equal(t, platform.Sleep, out.Kind)

	var buf bytes.Buffer
	require.NoError(t, printStatus(&buf, dir))
	assert.Contains(t, buf.String(), "last error:     offline: no usable network")
	assert.Contains(t, buf.String(), "settings:       never received")

	require.NoError(t, sim.PowerCycle(dir))
	buf.Reset()
	require.NoError(t, printStatus(&buf, dir))
	assert.Contains(t, buf.String(), "retained:       lost (cold boot)")
}

func TestMissingSensorHalts(t *testing.T) {
	dir := t.TempDir()
	sc := sim.DefaultScenario()
	sc.Sensor = nil
	require.NoError(t, initMachine(dir, "v1.4.0-0-g0000000", sc))

	o := nodeOptions{dir: dir, board: "sim", serverURL: startServer(t, "", "")}
	out, err := bootOnce(context.Background(), o, false)
	require.NoError(t, err)
	assert.Equal(t, platform.Halt, out.Kind)
}

func TestInitRejectsBadToken(t *testing.T) {
	assert.Error(t, initMachine(t.TempDir(), "1.4.0", sim.DefaultScenario()))
}

func TestLoadSettingsOverDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(p, []byte("mute_notifications: true\n"), 0o644))
	s, err := loadSettings(p)
	require.NoError(t, err)
	want := types.DefaultSettings()
	want.MuteNotifications = true
	assert.Equal(t, want, s)

	require.NoError(t, os.WriteFile(p, []byte("sleep: 5\n"), 0o644))
	_, err = loadSettings(p)
	assert.Error(t, err)
}
