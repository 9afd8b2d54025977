package pwmp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
	"pixelweather-go/x/conv"
	"pixelweather-go/x/logx"
)

// DefaultTimeout bounds a single request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// Client is the node's view of the server. Every error is classified as
// errcode.Pwmp.
type Client interface {
	// GetSettings returns nil when the server has no settings for the node.
	GetSettings(ctx context.Context) (*types.Settings, error)
	PostMeasurements(ctx context.Context, m types.Measurements) error
	PostStats(ctx context.Context, s types.Stats) error
	SendNotification(ctx context.Context, text string) error
	CheckOSUpdate(ctx context.Context, current types.Version) (types.UpdateStatus, error)
	// NextUpdateChunk returns nil once the image has been fully streamed.
	NextUpdateChunk(ctx context.Context, max int) ([]byte, error)
	ReportFirmware(ctx context.Context, success bool) error
	Close() error
}

// Conn is a Client over a websocket session.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger
}

var _ Client = (*Conn)(nil)

// Dial connects to url and introduces the node by its MAC address.
func Dial(ctx context.Context, url string, mac [6]byte) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	ws, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, errcode.Wrap(errcode.Pwmp, "dial", err)
	}
	c := &Conn{ws: ws, log: logx.Module("pwmp")}

	if err := c.call(ctx, MsgHello, Hello{MAC: conv.MAC(mac)}, MsgAck, nil); err != nil {
		_ = ws.Close()
		return nil, err
	}
	c.log.Debug("Session established", "server", url)
	return c, nil
}

func (c *Conn) GetSettings(ctx context.Context) (*types.Settings, error) {
	var r SettingsReply
	if err := c.call(ctx, MsgGetSettings, nil, MsgSettings, &r); err != nil {
		return nil, err
	}
	return r.Settings, nil
}

func (c *Conn) PostMeasurements(ctx context.Context, m types.Measurements) error {
	return c.call(ctx, MsgPostMeasurements, measurementsMsg(m), MsgAck, nil)
}

func (c *Conn) PostStats(ctx context.Context, s types.Stats) error {
	msg := StatsMsg{Battery: types.DecString(s.Battery), SSID: s.SSID, RSSI: s.RSSI}
	return c.call(ctx, MsgPostStats, msg, MsgAck, nil)
}

func (c *Conn) SendNotification(ctx context.Context, text string) error {
	return c.call(ctx, MsgNotification, NotificationMsg{Text: text}, MsgAck, nil)
}

func (c *Conn) CheckOSUpdate(ctx context.Context, current types.Version) (types.UpdateStatus, error) {
	var r UpdateStatusMsg
	if err := c.call(ctx, MsgCheckUpdate, CheckUpdateMsg{Current: current}, MsgUpdateStatus, &r); err != nil {
		return types.UpToDate, err
	}
	if !r.Available {
		return types.UpToDate, nil
	}
	return types.UpdateStatus{Available: true, Version: r.Version}, nil
}

func (c *Conn) NextUpdateChunk(ctx context.Context, max int) ([]byte, error) {
	if max <= 0 {
		return nil, errcode.New(errcode.InvalidParams, "next_chunk", "max must be positive")
	}
	var r ChunkMsg
	if err := c.call(ctx, MsgNextChunk, NextChunkMsg{Max: uint32(max)}, MsgChunk, &r); err != nil {
		return nil, err
	}
	if r.End {
		return nil, nil
	}
	if len(r.Data) == 0 || len(r.Data) > max {
		return nil, errcode.New(errcode.Pwmp, "next_chunk", fmt.Sprintf("bad chunk size %d", len(r.Data)))
	}
	return r.Data, nil
}

func (c *Conn) ReportFirmware(ctx context.Context, success bool) error {
	return c.call(ctx, MsgReportFirmware, ReportFirmwareMsg{Success: success}, MsgAck, nil)
}

// Close sends a close frame and drops the connection.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

// call sends one request and waits for its reply. A Reject reply or a reply
// of the wrong type is an error.
func (c *Conn) call(ctx context.Context, req MsgType, payload any, want MsgType, out any) error {
	op := req.String()
	id := uuid.NewString()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}

	data, err := encodeFrame(req, id, payload)
	if err != nil {
		return errcode.Wrap(errcode.Pwmp, op, err)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errcode.Wrap(errcode.Pwmp, op, err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errcode.Wrap(errcode.Pwmp, op, err)
	}

	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return errcode.Wrap(errcode.Pwmp, op, err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return errcode.Wrap(errcode.Pwmp, op, err)
		}
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return errcode.Wrap(errcode.Pwmp, op, err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := decodeFrame(data)
		if err != nil {
			return errcode.Wrap(errcode.Pwmp, op, err)
		}
		if f.ID != id {
			return errcode.New(errcode.Pwmp, op, "reply id mismatch")
		}
		switch f.Type {
		case want:
			if out == nil {
				return nil
			}
			return errcode.Wrap(errcode.Pwmp, op, decodePayload(f, out))
		case MsgReject:
			var r Reject
			if err := decodePayload(f, &r); err != nil {
				return errcode.Wrap(errcode.Pwmp, op, err)
			}
			return errcode.New(errcode.Pwmp, op, "rejected: "+r.Reason)
		default:
			return errcode.New(errcode.Pwmp, op, "unexpected reply "+f.Type.String())
		}
	}
}
