package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/hotkeyd/internal/history"
)

// Sink indexes module events into OpenSearch, one document per event, by
// POSTing to {baseURL}/{index}/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document is the indexed shape. It is flat so dashboards can filter on
// module and event without nested mappings.
type document struct {
	Timestamp     time.Time  `json:"@timestamp"`
	Event         string     `json:"event"`
	Module        string     `json:"module"`
	Kind          string     `json:"kind,omitempty"`
	PID           int        `json:"pid,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	UptimeSeconds *float64   `json:"uptime_seconds,omitempty"`
	Outcome       string     `json:"outcome,omitempty"`
	Error         string     `json:"error,omitempty"`
	LogPath       string     `json:"log_path,omitempty"`
}

func toDocument(e history.Event) document {
	r := e.Record
	d := document{
		Timestamp: e.OccurredAt.UTC(),
		Event:     string(e.Type),
		Module:    r.Name,
		Kind:      r.Kind,
		PID:       r.PID,
		Outcome:   r.Outcome,
		Error:     r.Error,
		LogPath:   r.LogPath,
	}
	// a launch that failed never started
	if !r.StartedAt.IsZero() {
		started := r.StartedAt.UTC()
		d.StartedAt = &started
	}
	if r.StoppedAt != nil {
		stopped := r.StoppedAt.UTC()
		d.StoppedAt = &stopped
		if d.StartedAt != nil {
			up := stopped.Sub(*d.StartedAt).Seconds()
			d.UptimeSeconds = &up
		}
	}
	return d
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, err := json.Marshal(toDocument(e))
	if err != nil {
		return fmt.Errorf("encode %s event for %s: %w", e.Type, e.Record.Name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
