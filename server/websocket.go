package server

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/xhad/neardup/pkg/pipeline"
)

const (
	MessageURL    = "url"
	MessageStats  = "stats"
	MessageStatus = "status"
	MessageResult = "result"
	MessageError  = "error"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// handleWebSocket processes messages one at a time, so every reply for a
// URL is written before the next message is read.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return nil
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(conn, Message{Type: MessageError, Content: "invalid message: expected JSON"})
			continue
		}

		switch msg.Type {
		case MessageURL:
			url := urlPattern.FindString(msg.Content)
			if url == "" {
				s.send(conn, Message{Type: MessageError, Content: "no URL found in message"})
				continue
			}

			s.send(conn, Message{Type: MessageStatus, Content: fmt.Sprintf("Processing URL: %s", url)})
			result := s.pipeline.ProcessURL(ctx, url)
			s.persist(ctx, result)

			if !result.Succeeded() {
				s.send(conn, Message{Type: MessageError, Content: pipeline.Describe(result), Data: result})
				continue
			}
			s.send(conn, Message{Type: MessageResult, Content: pipeline.Describe(result), Data: result})
		case MessageStats:
			s.send(conn, Message{Type: MessageResult, Content: "stats", Data: s.detector.Stats()})
		default:
			s.send(conn, Message{Type: MessageError, Content: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn().Err(err).Str("type", msg.Type).Msg("websocket write failed")
	}
}
