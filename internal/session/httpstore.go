package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPStore keeps session records in a remote object store behind a
// small http api, addressed by username.
type HTTPStore struct {
	*StoreConfig
	client *resty.Client
	logger *slog.Logger
}

// NewHTTPStore returns a new HTTPStore talking to the configured uri.
func NewHTTPStore(sc *StoreConfig) (*HTTPStore, error) {
	if sc.Uri == "" {
		return nil, errors.New("uri needs to be set for the api session store")
	}
	client := resty.New().SetTimeout(30 * time.Second)
	if sc.User != "" {
		client.SetBasicAuth(sc.User, sc.Password)
	}
	return &HTTPStore{
		StoreConfig: sc,
		client:      client,
		logger:      slog.With(slog.String("store", string(API_STORE_TYPE))),
	}, nil
}

func (s *HTTPStore) recordURL(username string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.Uri, "/"), sessionsDirname, url.PathEscape(username))
}

func (s *HTTPStore) Load(username string) (*Record, error) {
	var r Record
	resp, err := s.client.R().SetResult(&r).Get(s.recordURL(username))
	if err != nil {
		return nil, fmt.Errorf("error while fetching session record: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("error while fetching session record. Status Code: %d Response: %s", resp.StatusCode(), resp.String())
	}
	return &r, nil
}

func (s *HTTPStore) Save(username string, r *Record) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(r).
		Put(s.recordURL(username))
	if err != nil {
		return fmt.Errorf("error while persisting session record: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("error while persisting session record. Status Code: %d Response: %s", resp.StatusCode(), resp.String())
	}
	s.logger.Debug(fmt.Sprintf("wrote session record for user %s to %s", username, s.Uri))
	return nil
}

func (s *HTTPStore) Clear(username string) error {
	resp, err := s.client.R().Delete(s.recordURL(username))
	if err != nil {
		return fmt.Errorf("error while deleting session record: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("error while deleting session record. Status Code: %d Response: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
