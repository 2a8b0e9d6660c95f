package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSink_Record(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Record(context.Background(), Entry{
		UserID:     "user-1",
		Action:     ActionSiteCreated,
		TargetType: "site",
		TargetID:   "site-1",
		Details:    map[string]any{"url": "https://example.com"},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "user-1", line["user_id"])
	assert.Equal(t, "site.created", line["action"])
	assert.Equal(t, "site-1", line["target_id"])
	assert.Equal(t, map[string]any{"url": "https://example.com"}, line["details"])
}
