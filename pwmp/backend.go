package pwmp

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"pixelweather-go/types"
)

// ErrUnknownNode is returned by Authorize for nodes outside the allow-list.
var ErrUnknownNode = errors.New("unknown node")

// Releases is where firmware images come from.
type Releases interface {
	// Latest reports the newest published version, if any.
	Latest() (types.Version, bool, error)
	Image(v types.Version) ([]byte, error)
}

// NodeRecord is everything a node has reported.
type NodeRecord struct {
	Settings        *types.Settings
	Measurements    []types.Measurements
	Stats           []types.Stats
	Notifications   []string
	FirmwareReports []bool
}

// MemoryBackend keeps node state in memory. It is safe for concurrent use.
type MemoryBackend struct {
	mu       sync.Mutex
	allow    map[string]bool // nil allows every node
	nodes    map[string]*NodeRecord
	defaults *types.Settings
	releases Releases
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend(releases Releases) *MemoryBackend {
	return &MemoryBackend{nodes: make(map[string]*NodeRecord), releases: releases}
}

// Allow restricts the server to the given MACs.
func (b *MemoryBackend) Allow(macs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allow == nil {
		b.allow = make(map[string]bool)
	}
	for _, m := range macs {
		b.allow[m] = true
	}
}

// SetDefaultSettings serves s to nodes without their own settings.
func (b *MemoryBackend) SetDefaultSettings(s *types.Settings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaults = s
}

// SetSettings assigns settings to one node.
func (b *MemoryBackend) SetSettings(mac string, s types.Settings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.node(mac).Settings = &s
}

// Node returns a copy of what mac has reported.
func (b *MemoryBackend) Node(mac string) NodeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[mac]
	if !ok {
		return NodeRecord{}
	}
	return NodeRecord{
		Settings:        n.Settings,
		Measurements:    slices.Clone(n.Measurements),
		Stats:           slices.Clone(n.Stats),
		Notifications:   slices.Clone(n.Notifications),
		FirmwareReports: slices.Clone(n.FirmwareReports),
	}
}

func (b *MemoryBackend) node(mac string) *NodeRecord {
	n, ok := b.nodes[mac]
	if !ok {
		n = &NodeRecord{}
		b.nodes[mac] = n
	}
	return n
}

func (b *MemoryBackend) Authorize(mac string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allow != nil && !b.allow[mac] {
		return fmt.Errorf("%w: %s", ErrUnknownNode, mac)
	}
	return nil
}

func (b *MemoryBackend) Settings(mac string) (*types.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.nodes[mac]; ok && n.Settings != nil {
		s := *n.Settings
		return &s, nil
	}
	if b.defaults != nil {
		s := *b.defaults
		return &s, nil
	}
	return nil, nil
}

func (b *MemoryBackend) RecordMeasurements(mac string, m types.Measurements) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.node(mac)
	n.Measurements = append(n.Measurements, m)
	return nil
}

func (b *MemoryBackend) RecordStats(mac string, s types.Stats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.node(mac)
	n.Stats = append(n.Stats, s)
	return nil
}

func (b *MemoryBackend) Notify(mac, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.node(mac)
	n.Notifications = append(n.Notifications, text)
	return nil
}

func (b *MemoryBackend) RecordFirmwareReport(mac string, success bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.node(mac)
	n.FirmwareReports = append(n.FirmwareReports, success)
	return nil
}

func (b *MemoryBackend) CheckUpdate(mac string, current types.Version) (types.UpdateStatus, error) {
	if b.releases == nil {
		return types.UpToDate, nil
	}
	latest, ok, err := b.releases.Latest()
	if err != nil || !ok || !current.Less(latest) {
		return types.UpToDate, err
	}
	return types.UpdateStatus{Available: true, Version: latest}, nil
}

func (b *MemoryBackend) Firmware(v types.Version) ([]byte, error) {
	if b.releases == nil {
		return nil, errors.New("no releases")
	}
	return b.releases.Image(v)
}
