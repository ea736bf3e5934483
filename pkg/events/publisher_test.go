package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectEventID_AddsDBEventID(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"type": EventTypePhaseStarted, "session_id": "sess-1", "phase": 3})
	require.NoError(t, err)

	notifyPayload, err := injectEventID(payload, 42)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(notifyPayload), &decoded))
	assert.Equal(t, float64(42), decoded["db_event_id"])
	assert.Equal(t, float64(3), decoded["phase"])
}

func TestInjectEventID_TruncatesOversizedPayload(t *testing.T) {
	huge := strings.Repeat("x", notifyPayloadLimit)
	payload, err := json.Marshal(map[string]any{
		"type":       EventTypeFeedbackRequested,
		"session_id": "sess-1",
		"preview":    map[string]any{"blob": huge},
	})
	require.NoError(t, err)

	notifyPayload, err := injectEventID(payload, 7)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(notifyPayload), notifyPayloadLimit)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(notifyPayload), &decoded))
	assert.Equal(t, true, decoded["truncated"])
	assert.Equal(t, EventTypeFeedbackRequested, decoded["type"])
	assert.Equal(t, float64(7), decoded["db_event_id"])
	_, hasPreview := decoded["preview"]
	assert.False(t, hasPreview, "truncated envelope must drop the oversized field")
}

func TestInjectEventID_SmallPayloadUntouched(t *testing.T) {
	payload, err := json.Marshal(map[string]any{"type": EventTypeSessionCompleted, "session_id": "sess-1"})
	require.NoError(t, err)

	notifyPayload, err := injectEventID(payload, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(notifyPayload), notifyPayloadLimit)
	assert.Less(t, len(notifyPayload), len(payload)+50)
}

func TestRecordFromEnvelope_ExtractsFields(t *testing.T) {
	envelope := map[string]any{
		"type":        EventTypePhaseCompleted,
		"session_id":  "sess-9",
		"db_event_id": float64(101),
		"phase":       float64(2),
	}
	record := recordFromEnvelope(envelope)
	assert.Equal(t, EventTypePhaseCompleted, record.EventType)
	assert.Equal(t, "sess-9", record.SessionID)
	assert.Equal(t, int64(101), record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestRecordFromEnvelope_MissingFieldsLeaveZeroValues(t *testing.T) {
	record := recordFromEnvelope(map[string]any{})
	assert.Empty(t, record.EventType)
	assert.Empty(t, record.SessionID)
	assert.Equal(t, int64(0), record.ID)
}
