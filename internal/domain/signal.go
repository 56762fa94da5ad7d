package domain

import "encoding/json"

// Action is an open enum; unknown values are relayed as opaque application payloads.
type Action string

const (
	ActionNewPeer          Action = "new-peer"
	ActionOffer            Action = "offer"
	ActionAnswer           Action = "answer"
	ActionCandidate        Action = "candidate"
	ActionPeerDisconnected Action = "peer-disconnected"

	ActionScreenShareStart     Action = "screen-share-start"
	ActionScreenShareStop      Action = "screen-share-stop"
	ActionScreenShareOffer     Action = "screen-share-offer"
	ActionScreenShareAnswer    Action = "screen-share-answer"
	ActionScreenShareCandidate Action = "screen-share-candidate"

	ActionRecordingStarted   Action = "recording-started"
	ActionRecordingStopped   Action = "recording-stopped"
	ActionBreakoutCreated    Action = "breakout-room-created"
	ActionAssignedToBreakout Action = "user-assigned-to-breakout"
	ActionBreakoutClosed     Action = "breakout-room-closed"

	ActionRoomJoined Action = "room-joined"
	ActionError      Action = "error"
)

// SystemSender stamps messages that originate from the server itself.
const SystemSender = "system"

// controlActions are delivered to every connection in the room, the origin included.
var controlActions = map[Action]struct{}{
	ActionScreenShareStart:   {},
	ActionScreenShareStop:    {},
	ActionRecordingStarted:   {},
	ActionRecordingStopped:   {},
	ActionBreakoutCreated:    {},
	ActionAssignedToBreakout: {},
	ActionBreakoutClosed:     {},
}

func (a Action) IsControl() bool {
	_, ok := controlActions[a]
	return ok
}

// Signal is the unit of relay traffic. Target is routing-internal and never serialized.
type Signal struct {
	Action Action          `json:"action"`
	Sender string          `json:"sender"`
	Target UserID          `json:"-"`
	Data   json.RawMessage `json:"data"`
}

// NewSystemSignal marshals payload into a server-originated signal.
func NewSystemSignal(action Action, payload any) (Signal, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Signal{}, err
	}
	return Signal{Action: action, Sender: SystemSender, Data: raw}, nil
}

// Encode renders the outbound wire shape {action, sender, data}.
func (s Signal) Encode() ([]byte, error) {
	if s.Data == nil {
		s.Data = json.RawMessage("null")
	}
	return json.Marshal(s)
}
