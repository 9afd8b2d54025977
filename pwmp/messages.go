// Package pwmp implements the PixelWeather messaging protocol: binary
// websocket frames carrying CBOR-encoded [type, id, payload] arrays. The node
// is always the requester and every request gets exactly one reply.
package pwmp

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"pixelweather-go/types"
)

// MsgType identifies a frame.
type MsgType uint8

// Requests (node to server).
const (
	MsgHello MsgType = iota + 1
	MsgGetSettings
	MsgPostMeasurements
	MsgPostStats
	MsgNotification
	MsgCheckUpdate
	MsgNextChunk
	MsgReportFirmware
)

// Replies (server to node).
const (
	MsgAck MsgType = iota + 0x80
	MsgReject
	MsgSettings
	MsgUpdateStatus
	MsgChunk
)

var msgNames = map[MsgType]string{
	MsgHello:            "hello",
	MsgGetSettings:      "get_settings",
	MsgPostMeasurements: "post_measurements",
	MsgPostStats:        "post_stats",
	MsgNotification:     "notification",
	MsgCheckUpdate:      "check_update",
	MsgNextChunk:        "next_chunk",
	MsgReportFirmware:   "report_firmware",
	MsgAck:              "ack",
	MsgReject:           "reject",
	MsgSettings:         "settings",
	MsgUpdateStatus:     "update_status",
	MsgChunk:            "chunk",
}

func (t MsgType) String() string {
	if s, ok := msgNames[t]; ok {
		return s
	}
	return fmt.Sprintf("msg(%#x)", uint8(t))
}

// Frame is the envelope of every websocket message.
type Frame struct {
	_       struct{} `cbor:",toarray"`
	Type    MsgType
	ID      string
	Payload cbor.RawMessage
}

// Hello opens a session.
type Hello struct {
	MAC string `cbor:"1,keyasint"`
}

// Reject carries the reason a request failed.
type Reject struct {
	Reason string `cbor:"1,keyasint"`
}

// SettingsReply is nil Settings when the server has none for the node.
type SettingsReply struct {
	Settings *types.Settings `cbor:"1,keyasint"`
}

// Decimals travel as their canonical string form.

type MeasurementsMsg struct {
	Temperature string `cbor:"1,keyasint"`
	Humidity    uint8  `cbor:"2,keyasint"`
	AirPressure string `cbor:"3,keyasint,omitempty"`
}

type StatsMsg struct {
	Battery string `cbor:"1,keyasint"`
	SSID    string `cbor:"2,keyasint"`
	RSSI    int8   `cbor:"3,keyasint"`
}

type NotificationMsg struct {
	Text string `cbor:"1,keyasint"`
}

type CheckUpdateMsg struct {
	Current types.Version `cbor:"1,keyasint"`
}

type UpdateStatusMsg struct {
	Available bool          `cbor:"1,keyasint"`
	Version   types.Version `cbor:"2,keyasint"`
}

type NextChunkMsg struct {
	Max uint32 `cbor:"1,keyasint"`
}

// ChunkMsg with End set carries no data and closes the stream.
type ChunkMsg struct {
	Data []byte `cbor:"1,keyasint"`
	End  bool   `cbor:"2,keyasint"`
}

type ReportFirmwareMsg struct {
	Success bool `cbor:"1,keyasint"`
}

// encodeFrame marshals payload (which may be nil) into a frame.
func encodeFrame(t MsgType, id string, payload any) ([]byte, error) {
	f := Frame{Type: t, ID: id}
	if payload != nil {
		p, err := cbor.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = p
	}
	return cbor.Marshal(f)
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if len(data) == 0 {
		return f, fmt.Errorf("empty frame")
	}
	if err := cbor.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// decodePayload unmarshals f's payload into v. An absent payload leaves v
// untouched.
func decodePayload(f Frame, v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := cbor.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}

func measurementsMsg(m types.Measurements) MeasurementsMsg {
	out := MeasurementsMsg{Temperature: types.DecString(m.Temperature), Humidity: m.Humidity}
	if m.AirPressure != nil {
		out.AirPressure = m.AirPressure.String()
	}
	return out
}

func (m MeasurementsMsg) decode() (types.Measurements, error) {
	var out types.Measurements
	var err error
	if out.Temperature, err = types.ParseDec(m.Temperature); err != nil {
		return out, fmt.Errorf("temperature: %w", err)
	}
	out.Humidity = m.Humidity
	if m.AirPressure != "" {
		if out.AirPressure, err = types.ParseDec(m.AirPressure); err != nil {
			return out, fmt.Errorf("air pressure: %w", err)
		}
	}
	return out, nil
}

func (m StatsMsg) decode() (types.Stats, error) {
	v, err := types.ParseDec(m.Battery)
	if err != nil {
		return types.Stats{}, fmt.Errorf("battery: %w", err)
	}
	return types.Stats{Battery: v, SSID: m.SSID, RSSI: m.RSSI}, nil
}
