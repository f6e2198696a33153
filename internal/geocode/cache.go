package geocode

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// cacheFile is the on-disk form of the address cache.
type cacheFile struct {
	Version int               `msgpack:"version"`
	Entries map[string]string `msgpack:"entries"`
}

const cacheVersion = 1

// LoadCache reads a msgpack cache file. A missing file yields an empty cache.
func LoadCache(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read geocode cache: %w", err)
	}
	var cf cacheFile
	if err := msgpack.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decode geocode cache: %w", err)
	}
	if cf.Version != cacheVersion {
		return nil, fmt.Errorf("geocode cache version %d, want %d", cf.Version, cacheVersion)
	}
	if cf.Entries == nil {
		cf.Entries = map[string]string{}
	}
	return cf.Entries, nil
}

// SaveCache writes entries to path, replacing it atomically.
func SaveCache(path string, entries map[string]string) error {
	data, err := msgpack.Marshal(cacheFile{Version: cacheVersion, Entries: entries})
	if err != nil {
		return fmt.Errorf("encode geocode cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write geocode cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write geocode cache: %w", err)
	}
	return nil
}
