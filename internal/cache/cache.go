// Package cache stores the per-room calendars and the source listing on
// disk. The room directory is only ever replaced as a whole.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	appLog "roomfinder/internal/log"
)

// ErrNotFound is returned by Load for unknown rooms.
var ErrNotFound = errors.New("room calendar not found")

const (
	roomsDir    = "rooms"
	sourcesFile = "sources.json"
	stampFile   = ".refreshed"
	calendarExt = ".ics"
)

// Store is a directory of room calendars:
//
//	<root>/sources.json        source listing
//	<root>/rooms/<code>.ics    one calendar per room
//	<root>/rooms/.refreshed    time of the last ReplaceAll
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// New creates a store rooted at root on fsys.
func New(fsys afero.Fs, root string) *Store {
	if root == "" {
		root = "."
	}
	return &Store{fs: fsys, root: root, now: time.Now}
}

// NewOS creates a store on the local filesystem.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

func (s *Store) roomsPath() string {
	return filepath.Join(s.root, roomsDir)
}

// ListRooms returns the cached room codes in lexicographic order. A missing
// cache lists no rooms.
func (s *Store) ListRooms() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.roomsPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]string, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, calendarExt) {
			continue
		}
		rooms = append(rooms, strings.TrimSuffix(name, calendarExt))
	}
	sort.Strings(rooms)
	return rooms, nil
}

// Load returns the raw calendar document of one room.
func (s *Store) Load(code string) ([]byte, error) {
	if !validName(code) {
		return nil, fmt.Errorf("%w: invalid room name %q", ErrNotFound, code)
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.roomsPath(), code+calendarExt))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
		}
		return nil, err
	}
	return data, nil
}

// ReplaceAll swaps the whole room directory for docs. The new directory is
// written next to the old one and renamed into place, so readers see either
// the old or the new set.
func (s *Store) ReplaceAll(docs map[string][]byte) error {
	if err := s.fs.MkdirAll(s.root, 0o700); err != nil {
		return err
	}

	suffix := strconv.FormatInt(s.now().UnixNano(), 10)
	tmp := s.roomsPath() + ".tmp-" + suffix
	if err := s.fs.MkdirAll(tmp, 0o700); err != nil {
		return err
	}
	// Clean up the temp directory on any failure below.
	committed := false
	defer func() {
		if !committed {
			_ = s.fs.RemoveAll(tmp)
		}
	}()

	for code, body := range docs {
		if !validName(code) {
			appLog.Error("cache: skipping room with unusable name", errors.New("invalid name"), "room", code)
			continue
		}
		if err := afero.WriteFile(s.fs, filepath.Join(tmp, code+calendarExt), body, 0o600); err != nil {
			return err
		}
	}

	stamp := []byte(s.now().UTC().Format(time.RFC3339Nano))
	if err := afero.WriteFile(s.fs, filepath.Join(tmp, stampFile), stamp, 0o600); err != nil {
		return err
	}

	old := s.roomsPath() + ".old-" + suffix
	hadOld, err := afero.DirExists(s.fs, s.roomsPath())
	if err != nil {
		return err
	}
	if hadOld {
		if err := s.fs.Rename(s.roomsPath(), old); err != nil {
			return err
		}
	}
	if err := s.fs.Rename(tmp, s.roomsPath()); err != nil {
		if hadOld {
			_ = s.fs.Rename(old, s.roomsPath())
		}
		return err
	}
	committed = true

	if hadOld {
		if err := s.fs.RemoveAll(old); err != nil {
			appLog.Error("cache: failed to remove previous rooms", err, "path", old)
		}
	}
	return nil
}

// RefreshedAt returns when the room directory was last replaced, or the
// zero time when the cache is absent.
func (s *Store) RefreshedAt() (time.Time, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.roomsPath(), stampFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
}

// SaveSources persists the source listing.
func (s *Store) SaveSources(names []string) error {
	if err := s.fs.MkdirAll(s.root, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.root, sourcesFile)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return err
	}
	return s.fs.Rename(tmp, path)
}

// Sources returns the persisted source listing.
func (s *Store) Sources() ([]string, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, sourcesFile))
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("decode %s: %w", sourcesFile, err)
	}
	return names, nil
}

func validName(code string) bool {
	if code == "" || strings.HasPrefix(code, ".") {
		return false
	}
	return !strings.ContainsAny(code, `/\`)
}
