package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairs/internal/events"
	"pairs/internal/game"
	"pairs/internal/layout"
	"pairs/internal/score"
	"pairs/internal/snapshot"
)

// Status represents the session lifecycle.
type Status string

const (
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Outbound message types.
const (
	MsgState    = "state"
	MsgEffect   = "effect"
	MsgSound    = "sound"
	MsgMatch    = "match"
	MsgMismatch = "mismatch"
	MsgGameOver = "gameover"
	MsgError    = "error"
)

const publishTimeout = 2 * time.Second

// Message is the JSON envelope pushed to subscribers.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Encode renders a message envelope.
func Encode(typ string, payload any) []byte {
	data, err := json.Marshal(Message{Type: typ, Payload: payload})
	if err != nil {
		data, _ = json.Marshal(Message{Type: MsgError, Payload: err.Error()})
	}
	return data
}

// Subscriber is a connected client.
type Subscriber struct {
	ID   string
	Send chan []byte // outbound messages
}

// PairEvent is the payload of match and mismatch messages.
type PairEvent struct {
	Cards [2]int      `json:"cards"`
	Score score.State `json:"score"`
}

// Session owns one engine and fans its activity out to subscribers and the event
// publisher. It is the engine's listener, sound player and effect player.
type Session struct {
	Code      string
	CreatedAt time.Time

	engine    *game.Engine
	effects   game.EffectPlayer
	publisher events.Publisher
	log       zerolog.Logger
	onIdle    func(*Session)

	mu         sync.RWMutex
	subs       map[string]*Subscriber
	lastActive time.Time
}

type sessionConfig struct {
	game      game.Options
	score     score.Config
	scores    score.Store
	publisher events.Publisher
	logger    zerolog.Logger
	onIdle    func(*Session)
}

func newSession(code string, cfg sessionConfig) *Session {
	now := time.Now()
	s := &Session{
		Code:       code,
		CreatedAt:  now,
		effects:    cfg.game.Effects,
		publisher:  cfg.publisher,
		log:        cfg.logger.With().Str("session", code).Logger(),
		onIdle:     cfg.onIdle,
		subs:       make(map[string]*Subscriber),
		lastActive: now,
	}
	if s.effects == nil {
		s.effects = game.TimedEffects{}
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}

	opts := cfg.game
	opts.Score = score.NewEngine(cfg.score, cfg.scores)
	opts.Effects = s
	opts.Sounds = s
	opts.Listener = s
	opts.Logger = &s.log
	s.engine = game.New(opts)
	return s
}

// Engine returns the session's engine.
func (s *Session) Engine() *game.Engine { return s.engine }

// Select forwards a selection to the engine.
func (s *Session) Select(index int) bool {
	s.touch()
	ok := s.engine.SelectCard(index)
	if ok {
		s.broadcastState()
	}
	return ok
}

// NewGame starts a game on cols x rows, or on a random layout when both are zero.
func (s *Session) NewGame(cols, rows int) error {
	s.touch()
	var err error
	if cols == 0 && rows == 0 {
		_, err = s.engine.NewRandomGame()
	} else {
		err = s.engine.StartNewGame(cols, rows)
	}
	if err != nil {
		return err
	}
	s.broadcastState()
	return nil
}

// Snapshot captures the session's board.
func (s *Session) Snapshot() snapshot.Snapshot {
	return s.engine.Snapshot()
}

// Restore replaces the session's board with snap.
func (s *Session) Restore(snap snapshot.Snapshot) error {
	s.touch()
	if err := s.engine.Restore(snap); err != nil {
		return err
	}
	s.broadcastState()
	return nil
}

// Subscribe registers a client. A reconnecting id replaces its previous channel.
func (s *Session) Subscribe(id string) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.subs[id]; ok {
		close(old.Send)
	}
	sub := &Subscriber{ID: id, Send: make(chan []byte, 64)}
	s.subs[id] = sub
	s.lastActive = time.Now()
	return sub
}

// Unsubscribe removes sub. When the last subscriber leaves the session goes idle and
// is suspended.
func (s *Session) Unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	cur, ok := s.subs[sub.ID]
	if !ok || cur != sub {
		s.mu.Unlock()
		return
	}
	close(sub.Send)
	delete(s.subs, sub.ID)
	idle := len(s.subs) == 0
	s.lastActive = time.Now()
	s.mu.Unlock()

	if idle && s.onIdle != nil {
		s.onIdle(s)
	}
}

// SubscriberIDs returns the ids of connected clients.
func (s *Session) SubscriberIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast sends a message to all subscribers.
func (s *Session) Broadcast(msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		select {
		case sub.Send <- msg:
		default:
			// drop message if buffer full
		}
	}
}

// Send queues msg for sub alone. It is dropped when sub has left or its buffer is full.
func (s *Session) Send(sub *Subscriber, msg []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.subs[sub.ID] != sub {
		return
	}
	select {
	case sub.Send <- msg:
	default:
	}
}

func (s *Session) broadcastState() {
	s.Broadcast(Encode(MsgState, s.State()))
}

// Close stops the engine and disconnects every subscriber.
func (s *Session) Close() {
	s.engine.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		close(sub.Send)
		delete(s.subs, id)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive is the time of the last selection, game change or subscription change.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Play announces the effect to subscribers and then runs it.
func (s *Session) Play(ctx context.Context, e game.Effect) <-chan struct{} {
	s.Broadcast(Encode(MsgEffect, e))
	return s.effects.Play(ctx, e)
}

// PlaySound announces a sound cue.
func (s *Session) PlaySound(snd game.Sound) {
	s.Broadcast(Encode(MsgSound, snd))
}

func (s *Session) OnMatch(a, b int, st score.State) {
	s.Broadcast(Encode(MsgMatch, PairEvent{Cards: [2]int{a, b}, Score: st}))
	s.broadcastState()
	s.publish(events.KindMatch, []int{a, b}, st)
}

func (s *Session) OnMismatch(a, b int, st score.State) {
	s.Broadcast(Encode(MsgMismatch, PairEvent{Cards: [2]int{a, b}, Score: st}))
	s.broadcastState()
	s.publish(events.KindMismatch, []int{a, b}, st)
}

func (s *Session) OnGameOver(st score.State) {
	s.Broadcast(Encode(MsgGameOver, st))
	s.publish(events.KindGameOver, nil, st)
}

func (s *Session) publish(kind events.Kind, cards []int, st score.State) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := s.publisher.Publish(ctx, events.Event{
		Session: s.Code,
		Kind:    kind,
		Cards:   cards,
		Score:   st.Current,
		Combo:   st.Combo,
		Best:    st.Best,
		At:      time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("publish event")
	}
}

// CardState is a card as clients see it. Hidden cards do not reveal their pair or face.
type CardState struct {
	Index    int            `json:"index"`
	PairID   *int           `json:"pairId,omitempty"`
	Face     string         `json:"face,omitempty"`
	Position layout.Point   `json:"position"`
	FaceUp   bool           `json:"faceUp"`
	Matched  bool           `json:"matched"`
	Locked   bool           `json:"locked"`
	State    game.CardState `json:"state"`
}

// State is the client view of a session.
type State struct {
	Code        string      `json:"code"`
	Status      Status      `json:"status"`
	Cols        int         `json:"cols"`
	Rows        int         `json:"rows"`
	CardSize    layout.Size `json:"cardSize"`
	Cards       []CardState `json:"cards"`
	Score       score.State `json:"score"`
	Generation  uint64      `json:"generation"`
	Subscribers []string    `json:"subscribers"`
}

// State returns the client view of the session.
func (s *Session) State() State {
	l := s.engine.Layout()
	views := s.engine.Cards()
	cards := make([]CardState, len(views))
	for i, v := range views {
		cs := CardState{
			Index:    v.Index,
			Position: v.Position,
			FaceUp:   v.FaceUp,
			Matched:  v.Matched,
			Locked:   v.Locked,
			State:    v.State,
		}
		if v.FaceUp {
			id := v.ID
			cs.PairID = &id
			cs.Face = v.Face
		}
		cards[i] = cs
	}
	return State{
		Code:        s.Code,
		Status:      s.Status(),
		Cols:        l.Cols,
		Rows:        l.Rows,
		CardSize:    s.engine.CardSize(),
		Cards:       cards,
		Score:       s.engine.Score(),
		Generation:  s.engine.Generation(),
		Subscribers: s.SubscriberIDs(),
	}
}

// Status reports whether the current board is still being played.
func (s *Session) Status() Status {
	if s.engine.GameOver() {
		return StatusFinished
	}
	return StatusPlaying
}

// Info is the summary used in session listings.
type Info struct {
	Code        string      `json:"code"`
	Status      Status      `json:"status"`
	Cols        int         `json:"cols"`
	Rows        int         `json:"rows"`
	Score       score.State `json:"score"`
	Subscribers int         `json:"subscribers"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastActive  time.Time   `json:"lastActive"`
}

func (s *Session) Info() Info {
	l := s.engine.Layout()
	s.mu.RLock()
	subs, last := len(s.subs), s.lastActive
	s.mu.RUnlock()
	return Info{
		Code:        s.Code,
		Status:      s.Status(),
		Cols:        l.Cols,
		Rows:        l.Rows,
		Score:       s.engine.Score(),
		Subscribers: subs,
		CreatedAt:   s.CreatedAt,
		LastActive:  last,
	}
}
