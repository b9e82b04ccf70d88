package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	raw := Snapshot(map[string]any{"status": "CLOSED", "id": 7})
	require.NotNil(t, raw)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "CLOSED", decoded["status"])

	assert.Nil(t, Snapshot(nil))
	// Unmarshalable values degrade to nil instead of failing the action.
	assert.Nil(t, Snapshot(func() {}))
}
