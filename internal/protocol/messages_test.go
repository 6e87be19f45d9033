package protocol

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"ping"}`))
	require.NoError(t, err)
	control, ok := msg.(ClientControl)
	require.True(t, ok, "message type = %T, want ClientControl", msg)
	assert.Equal(t, ActionPing, control.Action)
}

func TestParseClientMessageRejectsBadInput(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ParseClientMessage([]byte(`{"type":"client_control"}`))
	assert.Error(t, err)

	_, err = ParseClientMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestStateEventOmitsEmptySession(t *testing.T) {
	b, err := json.Marshal(StateEvent{Type: TypeState, State: "idle", TSMs: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"state","state":"idle","turn":0,"ts_ms":5}`, string(b))
}
