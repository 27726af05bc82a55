package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pairs/internal/game"
	"pairs/internal/layout"
	"pairs/internal/score"
	"pairs/internal/storage"
)

// EnvPrefix is prepended to every environment override, e.g. PAIRS_SERVER_ADDR.
const EnvPrefix = "PAIRS"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Game    GameConfig    `mapstructure:"game"`
	Score   ScoreConfig   `mapstructure:"score"`
	Session SessionConfig `mapstructure:"session"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"` // empty disables event publishing
	Subject string `mapstructure:"subject"`
}

type GameConfig struct {
	Cols          int           `mapstructure:"cols"`
	Rows          int           `mapstructure:"rows"`
	Spacing       float64       `mapstructure:"spacing"`
	AreaWidth     float64       `mapstructure:"area_width"`
	AreaHeight    float64       `mapstructure:"area_height"`
	CardAspect    float64       `mapstructure:"card_aspect"`
	FlipDuration  time.Duration `mapstructure:"flip_duration"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	MismatchDelay time.Duration `mapstructure:"mismatch_delay"`
	Shuffle       bool          `mapstructure:"shuffle"`
	Layouts       []string      `mapstructure:"layouts"`
	Faces         []string      `mapstructure:"faces"`
}

type ScoreConfig struct {
	BasePoints  int           `mapstructure:"base_points"`
	ComboWindow time.Duration `mapstructure:"combo_window"`
	BestKey     string        `mapstructure:"best_key"`
}

type SessionConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxIdle         time.Duration `mapstructure:"max_idle"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("storage.path", "pairs.db")
	v.SetDefault("storage.dir", "saves")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "pairs")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "pairs.events")

	g := game.DefaultOptions()
	layouts := make([]string, len(g.Layouts))
	for i, l := range g.Layouts {
		layouts[i] = l.String()
	}
	v.SetDefault("game.cols", g.Layout.Cols)
	v.SetDefault("game.rows", g.Layout.Rows)
	v.SetDefault("game.spacing", g.Spacing)
	v.SetDefault("game.area_width", g.Area.W)
	v.SetDefault("game.area_height", g.Area.H)
	v.SetDefault("game.card_aspect", g.CardAspect)
	v.SetDefault("game.flip_duration", g.FlipDuration)
	v.SetDefault("game.settle_delay", g.SettleDelay)
	v.SetDefault("game.mismatch_delay", g.MismatchDelay)
	v.SetDefault("game.shuffle", g.Shuffle)
	v.SetDefault("game.layouts", layouts)
	v.SetDefault("game.faces", []string{})

	s := score.DefaultConfig()
	v.SetDefault("score.base_points", s.BasePoints)
	v.SetDefault("score.combo_window", s.ComboWindow)
	v.SetDefault("score.best_key", s.BestKey)

	v.SetDefault("session.cleanup_interval", time.Minute)
	v.SetDefault("session.max_idle", time.Hour)
}

// Load reads the YAML file at path, if it exists, and applies PAIRS_* environment
// overrides on top of the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	g := c.Game
	l := layout.Layout{Cols: g.Cols, Rows: g.Rows}
	switch {
	case !l.Valid():
		errs = append(errs, fmt.Errorf("game: layout %s must have positive dimensions and at most %d cells", l, layout.MaxCells))
	case !l.Even():
		errs = append(errs, fmt.Errorf("game: layout %s has an odd number of cells", l))
	}
	if _, err := c.Layouts(); err != nil {
		errs = append(errs, err)
	}
	if g.AreaWidth <= 0 || g.AreaHeight <= 0 {
		errs = append(errs, errors.New("game: area must be positive"))
	}
	if g.Spacing < 0 {
		errs = append(errs, errors.New("game: spacing must not be negative"))
	}
	if g.CardAspect <= 0 {
		errs = append(errs, errors.New("game: card_aspect must be positive"))
	}
	if g.FlipDuration <= 0 || g.SettleDelay <= 0 || g.MismatchDelay <= 0 {
		errs = append(errs, errors.New("game: durations must be positive"))
	}
	if c.Score.BasePoints <= 0 || c.Score.ComboWindow <= 0 {
		errs = append(errs, errors.New("score: base_points and combo_window must be positive"))
	}
	if c.Session.CleanupInterval <= 0 || c.Session.MaxIdle <= 0 {
		errs = append(errs, errors.New("session: cleanup_interval and max_idle must be positive"))
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverFile, storage.DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Layouts parses game.layouts.
func (c *Config) Layouts() ([]layout.Layout, error) {
	out := make([]layout.Layout, 0, len(c.Game.Layouts))
	for _, s := range c.Game.Layouts {
		l, err := layout.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("game.layouts: %w", err)
		}
		if !l.Valid() {
			return nil, fmt.Errorf("game.layouts: %s must have positive dimensions and at most %d cells", l, layout.MaxCells)
		}
		out = append(out, l)
	}
	return out, nil
}

// GameOptions builds the engine template. Layouts must already have been validated.
func (c *Config) GameOptions() game.Options {
	g := c.Game
	layouts, _ := c.Layouts()
	return game.Options{
		Layout:        layout.Layout{Cols: g.Cols, Rows: g.Rows},
		Layouts:       layouts,
		Area:          layout.Size{W: g.AreaWidth, H: g.AreaHeight},
		Spacing:       g.Spacing,
		CardAspect:    g.CardAspect,
		FlipDuration:  g.FlipDuration,
		SettleDelay:   g.SettleDelay,
		MismatchDelay: g.MismatchDelay,
		Shuffle:       g.Shuffle,
		Faces:         g.Faces,
	}
}

func (c *Config) ScoreConfig() score.Config {
	return score.Config{
		BasePoints:  c.Score.BasePoints,
		ComboWindow: c.Score.ComboWindow,
		BestKey:     c.Score.BestKey,
	}
}

func (c *Config) StorageOptions() storage.Options {
	s := c.Storage
	return storage.Options{
		Driver: s.Driver,
		Path:   s.Path,
		Dir:    s.Dir,
		Redis: storage.RedisOptions{
			Addr:     s.RedisAddr,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
			Prefix:   s.RedisPrefix,
		},
	}
}
