package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Driver names.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string // sqlite database
	Dir    string // file store root
	Redis  RedisOptions
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		s, err := New(opts.Path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", DriverSQLite).Str("path", opts.Path).Msg("storage opened")
		return s, nil
	case DriverFile:
		s, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", DriverFile).Str("dir", opts.Dir).Msg("storage opened")
		return s, nil
	case DriverRedis:
		s, err := NewRedisStore(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", DriverRedis).Str("addr", opts.Redis.Addr).Msg("storage opened")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
