package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

const prefsTimeout = 2 * time.Second

// ScoreStore adapts Prefs to the score engine's store, which has no error returns.
// Failures are logged; a failed read yields the default.
type ScoreStore struct {
	prefs Prefs
}

// NewScoreStore wraps prefs.
func NewScoreStore(prefs Prefs) *ScoreStore {
	return &ScoreStore{prefs: prefs}
}

func (s *ScoreStore) GetInt(key string, def int) int {
	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()
	v, err := s.prefs.GetInt(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("read preference")
		return def
	}
	return v
}

func (s *ScoreStore) SetInt(key string, value int) {
	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()
	if err := s.prefs.SetInt(ctx, key, value); err != nil {
		log.Error().Err(err).Str("key", key).Int("value", value).Msg("write preference")
	}
}
