package output

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jroca/siqscrape/internal/types"
)

// APIWriter represents a writer that posts the snapshot to a custom API.
type APIWriter struct {
	*WriterConfig
	client *http.Client
	logger *slog.Logger
}

// NewAPIWriter returns a new APIWriter
func NewAPIWriter(wc *WriterConfig) (*APIWriter, error) {
	if wc.Uri == "" {
		return nil, fmt.Errorf("uri needs to be specified for the APIWriter")
	}
	return &APIWriter{
		WriterConfig: wc,
		client: &http.Client{
			Timeout: time.Second * 60,
		},
		logger: slog.With(slog.String("writer", string(API_WRITER_TYPE))),
	}, nil
}

func (w *APIWriter) Write(snapshot types.Snapshot) error {
	data, err := encodeIndented(snapshot)
	if err != nil {
		return err
	}

	if w.DryRun {
		// in dry run mode we do not write anything to the api
		w.logger.Info(fmt.Sprintf("dry run, would post snapshot for %d sleepers to %s", len(snapshot), w.Uri))
		return nil
	}

	req, _ := http.NewRequest("POST", w.Uri, bytes.NewBuffer(data))
	req.Header = map[string][]string{
		"Content-Type": {"application/json"},
	}
	req.SetBasicAuth(w.User, w.Password)
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("error while sending post request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 && resp.StatusCode != 201 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error while reading post request response: %v", err)
		}
		return fmt.Errorf("error while posting snapshot. Status Code: %d Response: %s", resp.StatusCode, body)
	}
	w.logger.Info(fmt.Sprintf("posted snapshot for %d sleepers to the api", len(snapshot)))
	return nil
}
