package output

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/jroca/siqscrape/internal/types"
)

// FileWriter represents a writer that writes to a file
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewFileWriter returns a new FileWriter
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.FileDir == "" {
		return nil, errors.New("filedir needs to be specified for the FileWriter")
	}

	if err := os.MkdirAll(wc.FileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.FileDir, err)
	}

	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
		now:          time.Now,
	}, nil
}

func (w *FileWriter) Write(snapshot types.Snapshot) error {
	data, err := encodeIndented(snapshot)
	if err != nil {
		return err
	}

	// one file per run so consecutive runs don't clobber each other
	filename := fmt.Sprintf("snapshot-%s.json", w.now().Format("2006-01-02T15-04-05"))
	filepath := path.Join(w.FileDir, filename)
	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("error while writing snapshot to file: %w", err)
	}
	w.logger.Info(fmt.Sprintf("wrote snapshot for %d sleepers to file %s", len(snapshot), filepath))
	return nil
}
