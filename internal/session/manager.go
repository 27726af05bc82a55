package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"pairs/internal/events"
	"pairs/internal/game"
	"pairs/internal/layout"
	"pairs/internal/score"
	"pairs/internal/snapshot"
	"pairs/internal/storage"
)

// ErrNotFound is returned for an unknown session code.
var ErrNotFound = errors.New("session not found")

const suspendTimeout = 5 * time.Second

// Options configures the sessions a Manager creates.
type Options struct {
	// Game is the template for every engine. Rand and the collaborators are replaced
	// per session.
	Game      game.Options
	Score     score.Config
	Publisher events.Publisher
	Logger    zerolog.Logger
}

// Manager manages all active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	slots    storage.Slots
	scores   score.Store
	opts     Options
	log      zerolog.Logger
}

// NewManager creates a session manager. Games are saved to slots named by session code;
// scores holds the shared best score.
func NewManager(slots storage.Slots, scores score.Store, opts Options) *Manager {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	return &Manager{
		sessions: make(map[string]*Session),
		slots:    slots,
		scores:   scores,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "sessions").Logger(),
	}
}

func (m *Manager) newSession(code string) *Session {
	g := m.opts.Game
	g.Rand = nil
	return newSession(code, sessionConfig{
		game:      g,
		score:     m.opts.Score,
		scores:    m.scores,
		publisher: m.opts.Publisher,
		logger:    m.opts.Logger,
		onIdle:    m.suspend,
	})
}

// Create makes a new session and deals its first game. A nil layout picks one at random.
func (m *Manager) Create(ctx context.Context, l *layout.Layout) (*Session, error) {
	m.mu.Lock()
	code := generateCode()
	for m.sessions[code] != nil {
		code = generateCode()
	}
	s := m.newSession(code)
	m.sessions[code] = s
	m.mu.Unlock()

	var err error
	if l == nil {
		err = s.NewGame(0, 0)
	} else {
		err = s.NewGame(l.Cols, l.Rows)
	}
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, code)
		m.mu.Unlock()
		s.Close()
		return nil, err
	}
	m.log.Info().Str("session", code).Msg("session created")
	return s, nil
}

// Get returns a session by code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	return s, ok
}

// List returns info for all active sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos
}

// Save persists a session's board to its slot.
func (m *Manager) Save(ctx context.Context, code string) error {
	s, ok := m.Get(code)
	if !ok {
		return ErrNotFound
	}
	return m.save(ctx, s)
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	data, err := snapshot.Encode(s.Snapshot())
	if err != nil {
		return err
	}
	if err := m.slots.SaveSlot(ctx, s.Code, data); err != nil {
		return fmt.Errorf("save session %s: %w", s.Code, err)
	}
	return nil
}

// Load replaces a session's board with its saved slot. It returns snapshot.ErrNoSnapshot
// when nothing was saved and leaves the board untouched on any error.
func (m *Manager) Load(ctx context.Context, code string) error {
	s, ok := m.Get(code)
	if !ok {
		return ErrNotFound
	}
	snap, err := m.loadSlot(ctx, code)
	if err != nil {
		return err
	}
	return s.Restore(snap)
}

func (m *Manager) loadSlot(ctx context.Context, name string) (snapshot.Snapshot, error) {
	data, err := m.slots.LoadSlot(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return snapshot.Snapshot{}, snapshot.ErrNoSnapshot
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return snapshot.Decode(data)
}

// Restore rebuilds a session from every saved slot on startup. Slots that fail to load
// are skipped. It returns the number of sessions restored.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	slots, err := m.slots.ListSlots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list slots: %w", err)
	}
	restored := 0
	for _, slot := range slots {
		if _, exists := m.Get(slot.Name); exists {
			continue
		}
		snap, err := m.loadSlot(ctx, slot.Name)
		if err != nil {
			m.log.Warn().Err(err).Str("session", slot.Name).Msg("skipping saved game")
			continue
		}
		s := m.newSession(slot.Name)
		if err := s.Restore(snap); err != nil {
			s.Close()
			m.log.Warn().Err(err).Str("session", slot.Name).Msg("skipping saved game")
			continue
		}
		m.mu.Lock()
		m.sessions[slot.Name] = s
		m.mu.Unlock()
		restored++
		m.log.Debug().
			Str("session", slot.Name).
			Str("size", humanize.Bytes(uint64(slot.Size))).
			Str("saved", humanize.Time(slot.UpdatedAt)).
			Msg("session restored")
	}
	return restored, nil
}

// Remove deletes a session from memory and storage.
func (m *Manager) Remove(ctx context.Context, code string) error {
	m.mu.Lock()
	s, ok := m.sessions[code]
	delete(m.sessions, code)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return m.slots.DeleteSlot(ctx, code)
}

// suspend saves a session whose last subscriber has left.
func (m *Manager) suspend(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), suspendTimeout)
	defer cancel()
	if err := m.save(ctx, s); err != nil {
		m.log.Error().Err(err).Str("session", s.Code).Msg("suspend session")
		return
	}
	m.log.Debug().Str("session", s.Code).Msg("session suspended")
}

// CleanupLoop evicts idle sessions periodically until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx, maxIdle)
		}
	}
}

// cleanup saves and evicts sessions that have had no subscribers for longer than
// maxIdle. Their slots stay, so Load or a restart brings them back.
func (m *Manager) cleanup(ctx context.Context, maxIdle time.Duration) int {
	now := time.Now()
	m.mu.RLock()
	var stale []*Session
	for _, s := range m.sessions {
		if len(s.SubscriberIDs()) == 0 && now.Sub(s.LastActive()) > maxIdle {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		if err := m.save(ctx, s); err != nil {
			m.log.Error().Err(err).Str("session", s.Code).Msg("save before eviction")
			continue
		}
		m.mu.Lock()
		if m.sessions[s.Code] == s {
			delete(m.sessions, s.Code)
		}
		m.mu.Unlock()
		s.Close()
		m.log.Info().
			Str("session", s.Code).
			Str("idle", humanize.Time(s.LastActive())).
			Msg("cleaning up session")
	}
	return len(stale)
}

// Shutdown saves every session and stops its engine.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for code, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, code)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := m.save(ctx, s); err != nil {
			errs = append(errs, err)
		}
		s.Close()
	}
	m.log.Info().Int("sessions", len(sessions)).Msg("sessions saved")
	return errors.Join(errs...)
}

func generateCode() string {
	b := make([]byte, 3) // 6 hex chars
	rand.Read(b)
	return hex.EncodeToString(b)
}
