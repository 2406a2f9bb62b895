// Package output provides the interface and configuration and implementation for writers
package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jroca/siqscrape/internal/types"
)

// Writer defines the interface for all writers that are responsible
// for writing a finished snapshot to a specific output.
type Writer interface {
	Write(snapshot types.Snapshot) error
}

// WriterConfig defines the necessary parameters to make a new writer
// which is responsible for writing the extracted data to a specific output
// eg. stdout.
type WriterConfig struct {
	Type     WriterType `yaml:"type" env:"SIQ_WRITER_TYPE"`
	Uri      string     `yaml:"uri" env:"SIQ_WRITER_URI"`
	User     string     `yaml:"user" env:"SIQ_WRITER_USER"`         // we want to be able to pass credentials via env vars
	Password string     `yaml:"password" env:"SIQ_WRITER_PASSWORD"` // we want to be able to pass credentials via env vars
	FileDir  string     `yaml:"filedir"`
	DryRun   bool       `yaml:"dryrun"`
}

// WriterType encapsulates the type of a writer
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case "", STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}

// encodeIndented marshals v without escaping html characters.
// We cannot use json.MarshalIndent because it automatically replaces certain
// html characters with the corresponding Unicode replacement rune.
// See
// https://stackoverflow.com/questions/28595664/how-to-stop-json-marshal-from-escaping-and
// https://developpaper.com/the-solution-of-escaping-special-html-characters-in-golang-json-marshal/
func encodeIndented(v any) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("error while encoding snapshot: %v", err)
	}

	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("error while indenting json: %v", err)
	}
	return indentBuffer.Bytes(), nil
}
