package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/world"
)

// Server bridges websocket clients to a world's join, input and leave
// channels.
type Server struct {
	world *world.World
	log   *log.Logger

	// QueueSize bounds the per-client outgoing frame queue.
	QueueSize int

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world:     w,
		log:       logger,
		QueueSize: 16,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID, entityID, out := s.handshake(r.Context(), conn)
		if clientID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. The world never closes out; the reader loop
		// cancels ctx on disconnect.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-out:
					mt := websocket.TextMessage
					if f.Binary {
						mt = websocket.BinaryMessage
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(mt, f.Data); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if entityID == "" {
				// Observers only listen.
				continue
			}
			in, errMsg := decodeInput(msg)
			if errMsg != nil {
				pushFrame(out, *errMsg)
				continue
			}
			select {
			case s.world.Inbox() <- world.InputEnvelope{EntityID: entityID, Input: in}:
			case <-ctx.Done():
			}
		}
		cancel()
		s.leave(clientID)
	}
}

func decodeInput(msg []byte) (protocol.InputMsg, *protocol.ErrorMsg) {
	var in protocol.InputMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		e := protocol.NewError(protocol.ErrProtoBadRequest, "malformed message")
		return in, &e
	}
	if base.Type != protocol.TypeInput {
		e := protocol.NewError(protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
		return in, &e
	}
	if base.ProtocolVersion != protocol.Version {
		e := protocol.NewError(protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
		return in, &e
	}
	if err := protocol.Validate(protocol.TypeInput, msg); err != nil {
		e := protocol.NewError(protocol.ErrBadRequest, err.Error())
		return in, &e
	}
	if err := json.Unmarshal(msg, &in); err != nil {
		e := protocol.NewError(protocol.ErrBadRequest, err.Error())
		return in, &e
	}
	return in, nil
}

// handshake reads HELLO and joins the world. clientID is empty when the
// connection should be closed.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (clientID, entityID string, out chan world.Frame) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "expected HELLO"))
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version))
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return "", "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", "", nil
	}

	size := s.QueueSize
	if size <= 0 {
		size = 16
	}
	out = make(chan world.Frame, size)
	respCh := make(chan world.JoinResponse, 1)
	req := world.JoinRequest{
		Name:        strings.TrimSpace(hello.Name),
		Observer:    hello.Observer,
		ResumeToken: strings.TrimSpace(hello.ResumeToken),
		Out:         out,
		Resp:        respCh,
	}
	select {
	case s.world.Join() <- req:
	case <-ctx.Done():
		return "", "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		// The world owns the request now and may still admit it.
		go s.abandonJoin(respCh)
		return "", "", nil
	}
	if resp.Err != nil {
		_ = writeJSON(conn, *resp.Err)
		closeWith(conn, websocket.CloseTryAgainLater, resp.Err.Code)
		return "", "", nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.leave(resp.ClientID)
		return "", "", nil
	}
	return resp.ClientID, resp.Welcome.EntityID, out
}

// abandonJoin waits for the answer to a join nobody is reading anymore and
// detaches the client if the world admitted it.
func (s *Server) abandonJoin(respCh <-chan world.JoinResponse) {
	select {
	case resp := <-respCh:
		if resp.Err == nil && resp.ClientID != "" {
			s.leave(resp.ClientID)
		}
	case <-time.After(30 * time.Second):
		s.printf("ws: abandoned join got no response")
	}
}

func (s *Server) leave(clientID string) {
	select {
	case s.world.Leave() <- clientID:
	case <-time.After(5 * time.Second):
		s.printf("ws: leave for %s timed out", clientID)
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// pushFrame queues a transport-level error next to world frames, dropping it
// if the client is already backed up.
func pushFrame(out chan world.Frame, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- world.Frame{Data: b}:
	default:
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
