package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Send(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestEmitReachesEverySinkDespiteFailures(t *testing.T) {
	bad := &recordingSink{err: errors.New("down")}
	good := &recordingSink{}
	e := Event{Type: EventStart, OccurredAt: time.Now().UTC(), Record: Record{Name: "Notes", PID: 42}}

	Emit(context.Background(), []Sink{bad, good}, e, nil)

	require.Len(t, bad.events, 1)
	require.Len(t, good.events, 1)
	assert.Equal(t, "Notes", good.events[0].Record.Name)
}

func TestEmitNoSinks(t *testing.T) {
	Emit(context.Background(), nil, Event{Type: EventStop}, nil)
}

func TestEventJSONShape(t *testing.T) {
	stopped := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Event{
		Type:       EventStop,
		OccurredAt: stopped,
		Record: Record{
			Name:      "Backup",
			Kind:      "script",
			PID:       7,
			StartedAt: stopped.Add(-time.Minute),
			StoppedAt: &stopped,
			Outcome:   "terminated",
		},
	}
	b, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "stop", m["type"])
	rec := m["record"].(map[string]any)
	assert.Equal(t, "Backup", rec["name"])
	assert.Equal(t, "terminated", rec["outcome"])
	assert.NotContains(t, rec, "error")
}

func TestRecordNullableColumns(t *testing.T) {
	r := Record{}
	assert.Nil(t, r.StoppedAtOrNil())
	assert.Nil(t, r.ErrorOrNil())

	now := time.Now()
	r.StoppedAt = &now
	r.Error = "exit status 1"
	assert.Equal(t, now.UTC(), r.StoppedAtOrNil())
	assert.Equal(t, "exit status 1", r.ErrorOrNil())
}
