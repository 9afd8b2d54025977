package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
)

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	buf := []byte("x")
	require.NoError(t, s.Set("a", buf))
	buf[0] = 'y' // stored copy must not alias
	v, ok, _ := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), v)
	assert.Equal(t, []string{"a"}, s.Keys())

	require.NoError(t, s.Delete("a"))
	assert.Equal(t, errcode.InvalidNvsKey, errcode.Of(s.Delete("a")))
}

func TestLastErrorRecordLifecycle(t *testing.T) {
	nvs := NewNVS(NewMemStore())

	rec, err := nvs.LastError()
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, nvs.StoreLastError(errcode.Wrap(errcode.WifiConnect, "connect", errors.New("timeout"))))
	rec, err = nvs.LastError()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "wifi_connect", rec.Code)
	assert.Equal(t, "wifi_connect: timeout", rec.Message)

	require.NoError(t, nvs.ClearLastError())
	require.NoError(t, nvs.ClearLastError(), "clearing twice is fine")
	rec, err = nvs.LastError()
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.Error(t, nvs.StoreLastError(nil))
}

type failingStore struct{ MemStore }

func (failingStore) Get(string) ([]byte, bool, error) { return nil, false, errors.New("flash read") }
func (failingStore) Set(string, []byte) error         { return errors.New("flash write") }

func TestNVSSurfacesIOErrors(t *testing.T) {
	nvs := NewNVS(&failingStore{MemStore: *NewMemStore()})

	_, err := nvs.LastError()
	assert.Equal(t, errcode.NvsRead, errcode.Of(err))
	assert.Equal(t, errcode.NvsWrite, errcode.Of(nvs.StoreLastError(errcode.Offline)))
	_, _, err = nvs.Settings()
	assert.Equal(t, errcode.NvsRead, errcode.Of(err))
}

func TestSettingsRoundTripThroughStore(t *testing.T) {
	nvs := NewNVS(NewMemStore())
	_, ok, err := nvs.Settings()
	require.NoError(t, err)
	assert.False(t, ok)

	want := types.Settings{OTA: true, SleepTime: 300, SBOP: true}
	require.NoError(t, nvs.StoreSettings(want))
	got, ok, err := nvs.Settings()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRetainedColdBootResetsCounters(t *testing.T) {
	warm, err := InitRetained(types.ResetDeepSleep, nil)
	require.NoError(t, err)
	warm.IncFailures()
	warm.IncFailures()
	warm.SetReportPending(false)
	image, err := warm.Image()
	require.NoError(t, err)

	cold, err := InitRetained(types.ResetPowerOn, image)
	require.NoError(t, err)
	assert.True(t, cold.ColdBoot())
	assert.Equal(t, uint8(0), cold.Failures())
	assert.True(t, cold.ReportPending())

	again, err := InitRetained(types.ResetDeepSleep, image)
	require.NoError(t, err)
	assert.False(t, again.ColdBoot())
	assert.Equal(t, uint8(2), again.Failures())
	assert.False(t, again.ReportPending())
}

func TestRetainedRejectsGarbageOnWarmBoot(t *testing.T) {
	_, err := InitRetained(types.ResetSoftware, []byte{0xff, 0x00})
	assert.Equal(t, errcode.UnexpectedBufferFailure, errcode.Of(err))

	// The same bytes are irrelevant on a cold boot.
	_, err = InitRetained(types.ResetPowerOn, []byte{0xff, 0x00})
	assert.NoError(t, err)
}

func TestRetainedSaturatesAndGuardsUse(t *testing.T) {
	r, err := InitRetained(types.ResetPowerOn, nil)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		r.IncFailures()
	}
	assert.Equal(t, uint8(255), r.Failures())
	r.ResetFailures()
	assert.Equal(t, uint8(0), r.Failures())

	var zero Retained
	assert.Panics(t, func() { zero.Failures() })
	var nilRetained *Retained
	assert.Panics(t, func() { nilRetained.SetReportPending(true) })
}
