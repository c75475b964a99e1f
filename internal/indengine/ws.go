package indengine

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quantlab/internal/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 8 << 20
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// wsSession is one websocket peer. Each COMPUTE message is answered with a
// RESULT (or ERROR) carrying the same req_id; requests are served
// concurrently so replies may arrive out of order. SUBSCRIBE streams
// published results as RESULT messages tagged with the subscription's
// req_id until UNSUBSCRIBE or disconnect.
type wsSession struct {
	svc  *Service
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed when the writer exits
	ctx  context.Context

	subs map[string]context.CancelFunc // by req_id; read pump only
}

func (svc *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[indsvc] ws upgrade error: %v", err)
		return
	}
	ctx, cancel := context.WithCancel(logger.WithRequestID(context.Background(), logger.RequestID(r.Context())))
	s := &wsSession{
		svc:  svc,
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
		ctx:  ctx,
		subs: make(map[string]context.CancelFunc),
	}

	svc.prom.WSClients.Inc()
	go s.writePump()
	s.readPump()
	cancel()
	svc.prom.WSClients.Dec()
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(wsReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(wsMessage{Type: "ERROR", Error: "invalid message: " + err.Error()})
			continue
		}

		switch msg.Type {
		case "COMPUTE":
			if msg.Request == nil {
				s.reply(wsMessage{Type: "ERROR", ReqID: msg.ReqID, Error: "COMPUTE requires a request"})
				continue
			}
			go s.compute(msg.ReqID, *msg.Request)

		case "COMPUTE_BATCH":
			go s.computeBatch(msg.ReqID, msg.Requests)

		case "SUBSCRIBE":
			s.subscribe(msg.ReqID, msg.Kind, msg.ID)

		case "UNSUBSCRIBE":
			if cancel, ok := s.subs[msg.ReqID]; ok {
				cancel()
				delete(s.subs, msg.ReqID)
			}
			s.reply(wsMessage{Type: "UNSUBSCRIBED", ReqID: msg.ReqID})

		case "PING":
			s.reply(wsMessage{Type: "PONG", ReqID: msg.ReqID, Ping: msg.Ping})

		default:
			s.reply(wsMessage{Type: "ERROR", ReqID: msg.ReqID, Error: "unknown message type: " + msg.Type})
		}
	}
}

func (s *wsSession) compute(reqID string, req ComputeRequest) {
	res, hit, err := s.svc.Compute(s.ctx, req)
	if err != nil {
		s.reply(wsMessage{Type: "ERROR", ReqID: reqID, Error: err.Error()})
		return
	}
	s.reply(wsMessage{Type: "RESULT", ReqID: reqID, Result: res, Cached: hit})
}

func (s *wsSession) subscribe(reqID, kind, id string) {
	if _, dup := s.subs[reqID]; dup || reqID == "" {
		s.reply(wsMessage{Type: "ERROR", ReqID: reqID, Error: "SUBSCRIBE requires a unique req_id"})
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	ch, err := s.svc.Subscribe(ctx, kind, id)
	if err != nil {
		cancel()
		s.reply(wsMessage{Type: "ERROR", ReqID: reqID, Error: err.Error()})
		return
	}
	s.subs[reqID] = cancel
	s.reply(wsMessage{Type: "SUBSCRIBED", ReqID: reqID, Kind: kind, ID: id})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-ch:
				if !ok {
					return
				}
				s.reply(wsMessage{Type: "RESULT", ReqID: reqID, Result: res})
			}
		}
	}()
}

func (s *wsSession) computeBatch(reqID string, reqs []ComputeRequest) {
	s.reply(wsMessage{Type: "RESULTS", ReqID: reqID, Results: s.svc.ComputeBatch(s.ctx, reqs)})
}

// reply queues msg for the writer. It gives up when the session ends.
func (s *wsSession) reply(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[indsvc] ws marshal error: %v", err)
		return
	}
	select {
	case s.send <- data:
	case <-s.ctx.Done():
	case <-s.done:
	}
}
