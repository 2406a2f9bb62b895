package output

import (
	"fmt"
	"log/slog"

	"github.com/jroca/siqscrape/internal/types"
)

// StdoutWriter represents a writer that writes to stdout
type StdoutWriter struct {
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) Write(snapshot types.Snapshot) error {
	data, err := encodeIndented(snapshot)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
