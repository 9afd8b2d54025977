package pwmp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"pixelweather-go/types"
	"pixelweather-go/x/logx"
)

// Backend stores what nodes report and decides what they are served.
type Backend interface {
	// Authorize rejects nodes the server does not know.
	Authorize(mac string) error
	// Settings returns nil when the node has none assigned.
	Settings(mac string) (*types.Settings, error)
	RecordMeasurements(mac string, m types.Measurements) error
	RecordStats(mac string, s types.Stats) error
	Notify(mac, text string) error
	CheckUpdate(mac string, current types.Version) (types.UpdateStatus, error)
	// Firmware returns the image of an available version.
	Firmware(v types.Version) ([]byte, error)
	RecordFirmwareReport(mac string, success bool) error
}

// Server accepts node sessions over websocket.
type Server struct {
	backend  Backend
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewServer(b Backend) *Server {
	return &Server{
		backend:  b,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		log:      logx.Module("pwmp-server"),
	}
}

// session is the per-connection state.
type session struct {
	mac    string
	image  []byte
	offset int
}

var errNoSession = errors.New("hello required")

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer ws.Close()

	var sess session
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Session ended", "mac", sess.mac, "err", err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		f, err := decodeFrame(data)
		if err != nil {
			s.log.Warn("Dropping session on bad frame", "mac", sess.mac, "err", err)
			return
		}

		rt, payload, err := s.handle(&sess, f)
		if err != nil {
			s.log.Info("Rejecting request", "mac", sess.mac, "type", f.Type, "err", err)
			rt, payload = MsgReject, Reject{Reason: err.Error()}
		}
		out, err := encodeFrame(rt, f.ID, payload)
		if err != nil {
			s.log.Error("Encoding reply failed", "err", err)
			return
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, out); err != nil {
			return
		}
	}
}

func (s *Server) handle(sess *session, f Frame) (MsgType, any, error) {
	if f.Type == MsgHello {
		var h Hello
		if err := decodePayload(f, &h); err != nil {
			return 0, nil, err
		}
		if err := s.backend.Authorize(h.MAC); err != nil {
			return 0, nil, err
		}
		sess.mac = h.MAC
		s.log.Debug("Node connected", "mac", h.MAC)
		return MsgAck, nil, nil
	}
	if sess.mac == "" {
		return 0, nil, errNoSession
	}

	switch f.Type {
	case MsgGetSettings:
		st, err := s.backend.Settings(sess.mac)
		if err != nil {
			return 0, nil, err
		}
		return MsgSettings, SettingsReply{Settings: st}, nil

	case MsgPostMeasurements:
		var m MeasurementsMsg
		if err := decodePayload(f, &m); err != nil {
			return 0, nil, err
		}
		v, err := m.decode()
		if err != nil {
			return 0, nil, err
		}
		return MsgAck, nil, s.backend.RecordMeasurements(sess.mac, v)

	case MsgPostStats:
		var m StatsMsg
		if err := decodePayload(f, &m); err != nil {
			return 0, nil, err
		}
		v, err := m.decode()
		if err != nil {
			return 0, nil, err
		}
		return MsgAck, nil, s.backend.RecordStats(sess.mac, v)

	case MsgNotification:
		var m NotificationMsg
		if err := decodePayload(f, &m); err != nil {
			return 0, nil, err
		}
		return MsgAck, nil, s.backend.Notify(sess.mac, m.Text)

	case MsgCheckUpdate:
		var m CheckUpdateMsg
		if err := decodePayload(f, &m); err != nil {
			return 0, nil, err
		}
		st, err := s.backend.CheckUpdate(sess.mac, m.Current)
		if err != nil {
			return 0, nil, err
		}
		sess.image, sess.offset = nil, 0
		if st.Available {
			img, err := s.backend.Firmware(st.Version)
			if err != nil {
				return 0, nil, err
			}
			sess.image = img
		}
		return MsgUpdateStatus, UpdateStatusMsg{Available: st.Available, Version: st.Version}, nil

	case MsgNextChunk:
		var m NextChunkMsg
		if err := decodePayload(f, &m); err != nil {
			return 0, nil, err
		}
		if sess.image == nil {
			return 0, nil, errors.New("no update pending")
		}
		if m.Max == 0 {
			return 0, nil, errors.New("zero chunk size")
		}
		if sess.offset >= len(sess.image) {
			return MsgChunk, ChunkMsg{End: true}, nil
		}
		end := min(sess.offset+int(m.Max), len(sess.image))
		chunk := sess.image[sess.offset:end]
		sess.offset = end
		return MsgChunk, ChunkMsg{Data: chunk}, nil

	case MsgReportFirmware:
		var m ReportFirmwareMsg
		if err := decodePayload(f, &m); err != nil {
			return 0, nil, err
		}
		return MsgAck, nil, s.backend.RecordFirmwareReport(sess.mac, m.Success)
	}
	return 0, nil, errors.New("unsupported request " + f.Type.String())
}
