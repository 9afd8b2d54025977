package wifi

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
)

type fakeRadio struct {
	mac      [6]byte
	calls    []string
	failStep string

	scanPolls  int // ScanDone returns true after this many polls; <0 never
	aps        []types.AccessPoint
	stopped    int
	scanStops  int
	accept     map[string]bool // ssid -> associates
	dhcp       bool
	associated string
	ip         IPConfig
}

func (r *fakeRadio) step(name string) error {
	r.calls = append(r.calls, name)
	if r.failStep == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (r *fakeRadio) MAC() ([6]byte, error)                { return r.mac, r.step("mac") }
func (r *fakeRadio) ConfigureStation(ip IPConfig) error   { r.ip = ip; return r.step("configure") }
func (r *fakeRadio) SetPowerSaving(PowerSavingMode) error { return r.step("power_saving") }
func (r *fakeRadio) SetTxPower(int8) error                { return r.step("tx_power") }
func (r *fakeRadio) Start() error                         { return r.step("start") }
func (r *fakeRadio) SetCountryCode(string) error          { return r.step("country") }
func (r *fakeRadio) StartScan(time.Duration) error        { return r.step("scan") }
func (r *fakeRadio) StopScan() error                      { r.scanStops++; return nil }
func (r *fakeRadio) IP() (netip.Addr, error)              { return netip.MustParseAddr("10.0.0.7"), nil }
func (r *fakeRadio) Disconnect() error                    { r.associated = ""; return r.step("disconnect") }
func (r *fakeRadio) Stop() error                          { r.stopped++; return nil }
func (r *fakeRadio) NetifUp() (bool, error)               { return r.dhcp, nil }
func (r *fakeRadio) Connected() (bool, error)             { return r.associated != "", nil }
func (r *fakeRadio) ScanResults(max int) ([]types.AccessPoint, error) {
	if len(r.aps) > max {
		return r.aps[:max], nil
	}
	return r.aps, nil
}

func (r *fakeRadio) ScanDone() (bool, error) {
	if r.scanPolls < 0 {
		return false, nil
	}
	r.scanPolls--
	return r.scanPolls < 0, nil
}

func (r *fakeRadio) Connect(ssid, psk string, _ types.AuthMethod) error {
	r.calls = append(r.calls, "connect:"+ssid)
	if r.accept[ssid] {
		r.associated = ssid
	}
	return nil
}

func fastConfig(nets ...Credential) Config {
	return Config{
		Networks:       nets,
		ScanDwell:      time.Millisecond,
		ConnectTimeout: 5 * time.Millisecond,
		PollInterval:   time.Millisecond,
		MinRSSI:        DefaultMinRSSI,
	}
}

func ap(ssid string, rssi int8) types.AccessPoint {
	return types.AccessPoint{SSID: ssid, RSSI: rssi, Auth: types.AuthWPA2Personal}
}

func TestRankOrdersAndFilters(t *testing.T) {
	creds := []Credential{{"A", "pa"}, {"B", "pb"}}
	got, err := Rank([]types.AccessPoint{ap("A", -60), ap("B", -40), ap("C", -95)}, creds, -90)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].AP.SSID)
	assert.Equal(t, "pb", got[0].PSK)
	assert.Equal(t, "A", got[1].AP.SSID)
}

func TestRankIsStableAndDropsWeak(t *testing.T) {
	creds := []Credential{{"A", ""}, {"B", ""}, {"C", ""}}
	aps := []types.AccessPoint{ap("A", -70), ap("C", -91), ap("B", -70)}
	got, err := Rank(aps, creds, -90)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].AP.SSID)
	assert.Equal(t, "B", got[1].AP.SSID)
}

func TestRankEmptyIsOffline(t *testing.T) {
	_, err := Rank([]types.AccessPoint{ap("X", -30)}, []Credential{{"A", ""}}, -90)
	assert.Equal(t, errcode.Offline, errcode.Of(err))

	_, err = Rank(nil, nil, -90)
	assert.Equal(t, errcode.Offline, errcode.Of(err))
}

func TestHostnameUsesLastTwoMACBytes(t *testing.T) {
	assert.Equal(t, "pixelweather-node-BEEF", Hostname([6]byte{1, 2, 3, 4, 0xbe, 0xef}))
}

func TestNewRunsInitSequence(t *testing.T) {
	r := &fakeRadio{mac: [6]byte{0, 0, 0, 0, 0x12, 0x34}}
	w, err := New(r, fastConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"mac", "configure", "power_saving", "tx_power", "start", "country"}, r.calls)
	assert.Equal(t, "pixelweather-node-1234", r.ip.Hostname)
	assert.Nil(t, r.ip.Static)
	assert.Equal(t, r.mac, w.MAC())
}

func TestNewStaticIPSkipsHostname(t *testing.T) {
	r := &fakeRadio{}
	cfg := fastConfig()
	cfg.Static = &StaticIP{Address: netip.MustParsePrefix("10.0.0.9/24")}
	_, err := New(r, cfg)
	require.NoError(t, err)
	assert.Empty(t, r.ip.Hostname)
	assert.NotNil(t, r.ip.Static)
}

func TestNewAbortsOnFailingStep(t *testing.T) {
	for _, step := range []string{"configure", "power_saving", "tx_power", "start", "country"} {
		r := &fakeRadio{failStep: step}
		_, err := New(r, fastConfig())
		require.Error(t, err, step)
		assert.Equal(t, errcode.Platform, errcode.Of(err), step)
		assert.Equal(t, step, r.calls[len(r.calls)-1], "no step may run after %s", step)
		assert.Equal(t, 1, r.stopped)
	}
}

func TestScanStopsWhenSweepTimesOut(t *testing.T) {
	r := &fakeRadio{scanPolls: -1, aps: []types.AccessPoint{ap("A", -50), ap("B", -60), ap("C", -70)}}
	w, err := New(r, fastConfig())
	require.NoError(t, err)

	aps, err := w.Scan()
	require.NoError(t, err)
	assert.Equal(t, 1, r.scanStops)
	assert.Len(t, aps, DefaultMaxCandidates)
}

func TestScanFinishedEarly(t *testing.T) {
	r := &fakeRadio{scanPolls: 1, aps: []types.AccessPoint{ap("A", -50)}}
	w, err := New(r, fastConfig())
	require.NoError(t, err)

	aps, err := w.Scan()
	require.NoError(t, err)
	assert.Zero(t, r.scanStops)
	assert.Len(t, aps, 1)
}

func TestAcquireFallsThroughCandidates(t *testing.T) {
	r := &fakeRadio{
		aps:    []types.AccessPoint{ap("weak", -70), ap("strong", -40)},
		accept: map[string]bool{"weak": true},
		dhcp:   true,
	}
	w, err := New(r, fastConfig(Credential{"weak", "x"}, Credential{"strong", "y"}))
	require.NoError(t, err)

	got, err := w.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "weak", got.SSID)
	assert.Contains(t, r.calls, "connect:strong")
	assert.Equal(t, "connect:weak", r.calls[len(r.calls)-1])
}

func TestAcquireExhaustedIsOffline(t *testing.T) {
	r := &fakeRadio{aps: []types.AccessPoint{ap("A", -40)}, accept: map[string]bool{}}
	w, err := New(r, fastConfig(Credential{"A", "x"}))
	require.NoError(t, err)

	_, err = w.Acquire()
	assert.Equal(t, errcode.Offline, errcode.Of(err))
	assert.True(t, errcode.Recoverable(err))
}

func TestConnectWithoutLeaseFails(t *testing.T) {
	r := &fakeRadio{accept: map[string]bool{"A": true}}
	w, err := New(r, fastConfig())
	require.NoError(t, err)

	err = w.Connect(Candidate{AP: ap("A", -40)}, 2*time.Millisecond)
	assert.Equal(t, errcode.WifiConnect, errcode.Of(err))
}

func TestConnectStaticSkipsLease(t *testing.T) {
	r := &fakeRadio{accept: map[string]bool{"A": true}}
	cfg := fastConfig()
	cfg.Static = &StaticIP{Address: netip.MustParsePrefix("10.0.0.9/24")}
	w, err := New(r, cfg)
	require.NoError(t, err)

	require.NoError(t, w.Connect(Candidate{AP: ap("A", -40)}, 2*time.Millisecond))
}

func TestConnectRejectsOversizeCredentials(t *testing.T) {
	r := &fakeRadio{}
	w, err := New(r, fastConfig())
	require.NoError(t, err)

	err = w.Connect(Candidate{AP: ap(strings.Repeat("s", 33), -40)}, time.Millisecond)
	assert.Equal(t, errcode.SsidTooLong, errcode.Of(err))
	err = w.Connect(Candidate{AP: ap("ok", -40), PSK: strings.Repeat("p", 65)}, time.Millisecond)
	assert.Equal(t, errcode.PskTooLong, errcode.Of(err))
	assert.False(t, errcode.Recoverable(err))
}

func TestCloseIsBestEffortAndIdempotent(t *testing.T) {
	r := &fakeRadio{accept: map[string]bool{"A": true}, dhcp: true, failStep: "disconnect"}
	w, err := New(r, fastConfig())
	require.NoError(t, err)
	require.NoError(t, w.Connect(Candidate{AP: ap("A", -40)}, time.Millisecond))

	w.Close()
	w.Close()
	assert.Equal(t, 1, r.stopped)
	assert.Equal(t, 1, strings.Count(strings.Join(r.calls, ","), "disconnect"))
}
