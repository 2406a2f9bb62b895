package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
)

const sessionsDirname = "sessions"

// FileStore keeps session records as json files on the local
// filesystem, one per username.
type FileStore struct {
	*StoreConfig
	logger *slog.Logger
}

// NewFileStore returns a new FileStore rooted at the configured dir.
func NewFileStore(sc *StoreConfig) (*FileStore, error) {
	if sc.Dir == "" {
		sc.Dir = "." // default
	}
	return &FileStore{
		StoreConfig: sc,
		logger:      slog.With(slog.String("store", string(FILE_STORE_TYPE))),
	}, nil
}

func (s *FileStore) recordPath(username string) string {
	return path.Join(s.Dir, sessionsDirname, fmt.Sprintf("%s.json", username))
}

func (s *FileStore) Load(username string) (*Record, error) {
	data, err := os.ReadFile(s.recordPath(username))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &r, nil
}

func (s *FileStore) Save(username string, r *Record) error {
	dir := path.Join(s.Dir, sessionsDirname)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	filepath := s.recordPath(username)
	// 0600, the record holds live credentials in cookie form
	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return err
	}
	s.logger.Debug(fmt.Sprintf("wrote session record to file %s", filepath))
	return nil
}

func (s *FileStore) Clear(username string) error {
	err := os.Remove(s.recordPath(username))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
