package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/segfault-society/saathi/logger"
	"github.com/segfault-society/saathi/models"
	"github.com/segfault-society/saathi/sessions"
)

// Server wires the session manager to the HTTP surface.
type Server struct {
	Manager *sessions.Manager
	Router  *gin.Engine
}

// NewServer builds the gin router with all routes registered.
func NewServer(manager *sessions.Manager) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), CORS(), RequestID())

	s := &Server{Manager: manager, Router: router}

	router.GET("/", s.handleHealth)
	router.GET("/health", s.handleHealth)
	router.POST("/session/start", s.handleSessionStart)
	router.POST("/chat", s.handleChat)
	router.GET("/chat/history/:session_id", s.handleHistory)
	router.GET("/sessions", s.handleSessions)
	router.GET("/ws", s.handleWebSocket)

	return s
}

// Run starts the HTTP listener.
func (s *Server) Run(addr string) error {
	return s.Router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:  "ok",
		Message: "chat backend is running",
	})
}

func (s *Server) handleSessionStart(c *gin.Context) {
	var req models.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	status, err := s.Manager.EnsureSession(req.SessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SessionStatusResponse{Status: status})
}

func (s *Server) handleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if c.Query("stream") == "true" {
		s.streamChat(c, req)
		return
	}

	result, err := s.Manager.Answer(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if result.Degraded {
		c.Header("X-Degraded", "true")
	}
	c.JSON(http.StatusOK, models.ChatResponse{
		Response: result.Reply,
		History:  result.History,
	})
}

// streamChat relays fragments as a plain text body. Fragments already
// written cannot be retracted, so an error mid-stream only stops the relay;
// an error before the first fragment still gets a proper status code.
func (s *Server) streamChat(c *gin.Context, req models.ChatRequest) {
	fragChan, errChan, degradedChan := s.Manager.AnswerStream(c.Request.Context(), req)

	// The degraded flag arrives before the first fragment, so the header can
	// still make it out ahead of the body.
	if <-degradedChan {
		c.Header("X-Degraded", "true")
	}

	wroteAny := false
	c.Stream(func(w io.Writer) bool {
		for {
			select {
			case frag, ok := <-fragChan:
				if !ok {
					fragChan = nil
					break
				}
				if !wroteAny {
					c.Header("Content-Type", "text/plain; charset=utf-8")
					c.Status(http.StatusOK)
					wroteAny = true
				}
				if _, err := io.WriteString(w, frag); err != nil {
					logger.L.Warn("stream write failed", "error", err)
					return false
				}
				return true

			case err, ok := <-errChan:
				if ok && err != nil {
					if !wroteAny {
						s.writeError(c, err)
						return false
					}
					logger.L.Error("stream failed after partial output", "error", err)
					return false
				}
				errChan = nil

			case <-c.Request.Context().Done():
				return false
			}

			if fragChan == nil && errChan == nil {
				return false
			}
		}
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	turns, err := s.Manager.SessionTurns(sessionID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]models.TurnResponse, 0, len(turns))
	for _, turn := range turns {
		out = append(out, models.TurnResponse{
			ID:          turn.ID,
			SessionID:   turn.SessionID,
			UserPrompt:  turn.UserPrompt,
			BotResponse: turn.BotResponse,
			Timestamp:   turn.Timestamp,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSessions(c *gin.Context) {
	infos, err := s.Manager.Sessions()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": infos})
}

// writeError maps session error kinds onto HTTP status codes. Anything
// untyped is treated as an internal failure.
func (s *Server) writeError(c *gin.Context, err error) {
	var sErr *sessions.Error
	if errors.As(err, &sErr) {
		switch sErr.Kind {
		case sessions.KindInvalidRequest:
			c.JSON(http.StatusBadRequest, gin.H{"error": sErr.Message})
			return
		case sessions.KindGenerationFailure, sessions.KindStoreUnavailable:
			c.JSON(http.StatusInternalServerError, gin.H{"error": sErr.Message})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
