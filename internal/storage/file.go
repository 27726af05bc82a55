package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

const (
	slotDir   = "slots"
	slotExt   = ".json"
	prefsFile = "prefs.json"
)

// FileStore keeps one JSON file per slot under dir/slots and the preferences in
// dir/prefs.json. Every write goes to a temp file that is then renamed into place.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, slotDir), 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) slotPath(name string) string {
	return filepath.Join(f.dir, slotDir, name+slotExt)
}

func (f *FileStore) SaveSlot(_ context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeFileAtomic(f.slotPath(name), data); err != nil {
		return fmt.Errorf("save slot %s: %w", name, err)
	}
	log.Debug().Str("slot", name).Str("size", humanize.Bytes(uint64(len(data)))).Msg("slot written")
	return nil
}

func (f *FileStore) LoadSlot(_ context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.slotPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", name, err)
	}
	return data, nil
}

func (f *FileStore) ListSlots(_ context.Context) ([]SlotInfo, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, slotDir))
	if err != nil {
		return nil, err
	}
	var result []SlotInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), slotExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		result = append(result, SlotInfo{
			Name:      strings.TrimSuffix(e.Name(), slotExt),
			Size:      int(info.Size()),
			UpdatedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (f *FileStore) DeleteSlot(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	err := os.Remove(f.slotPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileStore) GetInt(_ context.Context, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefs, err := f.readPrefs()
	if err != nil {
		return 0, err
	}
	v, ok := prefs[key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (f *FileStore) SetInt(_ context.Context, key string, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefs, err := f.readPrefs()
	if err != nil {
		return err
	}
	prefs[key] = value
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(f.dir, prefsFile), data)
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) readPrefs() (map[string]int, error) {
	prefs := make(map[string]int)
	data, err := os.ReadFile(filepath.Join(f.dir, prefsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", prefsFile, err)
	}
	return prefs, nil
}

// writeFileAtomic never leaves a partially written file at path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
