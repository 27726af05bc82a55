package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"pairs/internal/session"
)

// Reply types sent to a single client.
const (
	msgJoined = "joined"
	msgSaved  = "saved"
)

// WSMessage is the JSON envelope for inbound WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PlayerID string `json:"playerId"`
}

type joinedPayload struct {
	PlayerID string        `json:"playerId"`
	State    session.State `json:"state"`
}

type selectPayload struct {
	Index int `json:"index"`
}

type newGamePayload struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sess, ok := s.manager.Get(code)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	// First message must be a join
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "join" {
		sendWSError(ctx, conn, "first message must be a join")
		return
	}
	var join joinPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &join); err != nil {
			sendWSError(ctx, conn, "invalid join payload")
			return
		}
	}
	playerID := join.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	sub := sess.Subscribe(playerID)
	defer sess.Unsubscribe(sub)
	log := s.log.With().Str("session", code).Str("player", playerID).Logger()
	log.Debug().Msg("player connected")

	// Writer goroutine: send messages from the channel to the websocket. The channel
	// closes when the subscriber is replaced or the session goes away.
	go func() {
		defer conn.Close(websocket.StatusGoingAway, "")
		for msg := range sub.Send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	sendWSMsg(sess, sub, msgJoined, joinedPayload{PlayerID: playerID, State: sess.State()})

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: "invalid message"})
			continue
		}
		s.handleMessage(ctx, sess, sub, msg)
	}

	log.Debug().Msg("player disconnected")
}

func (s *Server) handleMessage(ctx context.Context, sess *session.Session, sub *session.Subscriber, msg WSMessage) {
	switch msg.Type {
	case "select":
		var p selectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: "invalid select payload"})
			return
		}
		if !sess.Select(p.Index) {
			sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: "card not selectable"})
		}

	case "new":
		var p newGamePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: "invalid new game payload"})
				return
			}
		}
		if err := sess.NewGame(p.Cols, p.Rows); err != nil {
			sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: err.Error()})
		}

	case "save":
		if err := s.manager.Save(ctx, sess.Code); err != nil {
			s.log.Error().Err(err).Str("session", sess.Code).Msg("save session")
			sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: err.Error()})
			return
		}
		sendWSMsg(sess, sub, msgSaved, nil)

	case "load":
		if err := s.manager.Load(ctx, sess.Code); err != nil {
			sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: err.Error()})
		}

	default:
		sendWSMsg(sess, sub, session.MsgError, errorPayload{Message: "unknown message type: " + msg.Type})
	}
}

func sendWSMsg(sess *session.Session, sub *session.Subscriber, msgType string, payload any) {
	sess.Send(sub, session.Encode(msgType, payload))
}

func sendWSError(ctx context.Context, conn *websocket.Conn, message string) {
	conn.Write(ctx, websocket.MessageText, session.Encode(session.MsgError, errorPayload{Message: message}))
}
