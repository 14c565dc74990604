package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/hsklearn/vocab-auth/authenticate/internal/models"
)

// OpenSearchConfig configures the history mirror index.
type OpenSearchConfig struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Index    string
}

// OpenSearchSink mirrors login attempts into an index so they can be searched
// beyond the 100-entry read window. Document id is the audit entry id, which
// makes redelivery idempotent.
type OpenSearchSink struct {
	client *opensearch.Client
	index  string
}

func NewOpenSearchSink(cfg OpenSearchConfig) (*OpenSearchSink, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = "vocab-auth-login-history"
	}
	return &OpenSearchSink{client: client, index: index}, nil
}

func (s *OpenSearchSink) Name() string { return "opensearch" }

type historyDocument struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"@timestamp"`
	Username  string `json:"username"`
	Success   bool   `json:"success"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Deliver indexes attempt events; lock and unlock events are not mirrored.
func (s *OpenSearchSink) Deliver(ctx context.Context, ev Event) error {
	if ev.Kind != EventAttempt || ev.Entry == nil {
		return nil
	}
	e := ev.Entry
	body, err := json.Marshal(historyDocument{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC().Format(models.HistoryTimestampLayout),
		Username:  e.Username,
		Success:   e.Success,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		RequestID: ev.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal history document: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(strconv.FormatInt(e.ID, 10)),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index history document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("opensearch returned %s: %s", res.Status(), bytes.TrimSpace(msg))
	}
	return nil
}
