package server

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/segfault-society/saathi/logger"
	"github.com/segfault-society/saathi/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsWriter serializes writes to a websocket connection. Gorilla connections
// do not allow concurrent writers.
type wsWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsWriter) writeDelta(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(map[string]string{"type": "delta", "text": text})
}

func (w *wsWriter) writeDone(response string, degraded bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	frame := map[string]string{"type": "done", "response": response}
	if degraded {
		frame["degraded"] = "true"
	}
	return w.conn.WriteJSON(frame)
}

func (w *wsWriter) writeError(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(map[string]string{"type": "error", "error": message})
}

// handleWebSocket runs a chat loop over a single connection. Each inbound
// frame is a ChatRequest; the reply streams back as delta frames followed by
// a done frame carrying the full text.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	writer := &wsWriter{conn: conn}

	for {
		var req models.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.L.Warn("websocket read failed", "error", err)
			}
			return
		}

		if err := s.streamOverSocket(c, writer, req); err != nil {
			return
		}
	}
}

// streamOverSocket relays one exchange. A write failure means the client is
// gone and the loop should end; a session error is reported in-band and the
// connection stays open for the next message.
func (s *Server) streamOverSocket(c *gin.Context, writer *wsWriter, req models.ChatRequest) error {
	fragChan, errChan, degradedChan := s.Manager.AnswerStream(c.Request.Context(), req)
	degraded := <-degradedChan

	var reply strings.Builder
	for {
		select {
		case frag, ok := <-fragChan:
			if !ok {
				fragChan = nil
				break
			}
			reply.WriteString(frag)
			if err := writer.writeDelta(frag); err != nil {
				return err
			}

		case err, ok := <-errChan:
			if ok && err != nil {
				return writer.writeError(err.Error())
			}
			errChan = nil

		case <-c.Request.Context().Done():
			return c.Request.Context().Err()
		}

		if fragChan == nil && errChan == nil {
			return writer.writeDone(reply.String(), degraded)
		}
	}
}
