package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlActions(t *testing.T) {
	for _, a := range []Action{
		ActionScreenShareStart, ActionScreenShareStop,
		ActionRecordingStarted, ActionRecordingStopped,
		ActionBreakoutCreated, ActionAssignedToBreakout, ActionBreakoutClosed,
	} {
		assert.Truef(t, a.IsControl(), "%s", a)
	}
	for _, a := range []Action{
		ActionOffer, ActionAnswer, ActionCandidate, ActionNewPeer,
		ActionScreenShareOffer, ActionScreenShareAnswer, ActionScreenShareCandidate,
		"whiteboard-stroke",
	} {
		assert.Falsef(t, a.IsControl(), "%s", a)
	}
}

func TestSignalEncodeOmitsTarget(t *testing.T) {
	s := Signal{Action: ActionOffer, Sender: "A", Target: "B", Data: json.RawMessage(`{"sdp":"v=0"}`)}
	b, err := s.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"offer","sender":"A","data":{"sdp":"v=0"}}`, string(b))

	b, err = Signal{Action: "x", Sender: "A"}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"x","sender":"A","data":null}`, string(b))
}

func TestNewSystemSignal(t *testing.T) {
	s, err := NewSystemSignal(ActionRecordingStarted, map[string]string{"id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, SystemSender, s.Sender)
	assert.JSONEq(t, `{"id":"r1"}`, string(s.Data))
}
