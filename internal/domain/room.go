package domain

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

type SessionKind string

const (
	KindRegular SessionKind = "regular"
	KindInstant SessionKind = "instant"
)

func ParseSessionKind(s string) (SessionKind, error) {
	switch SessionKind(s) {
	case KindRegular, KindInstant:
		return SessionKind(s), nil
	}
	return "", errors.Wrapf(ErrInvalid, "unknown session kind %q", s)
}

// RoomKey identifies a relay group. Immutable once a connection is bound to it.
type RoomKey string

const breakoutSep = "/breakout:"

var segmentRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSegment reports whether s can be used as a session or breakout id in a room key.
func ValidSegment(s string) bool { return segmentRe.MatchString(s) }

func MainRoom(sessionID string) RoomKey {
	return RoomKey(string(KindRegular) + ":" + sessionID)
}

func BreakoutRoom(sessionID, breakoutID string) RoomKey {
	return RoomKey(string(MainRoom(sessionID)) + breakoutSep + breakoutID)
}

func InstantRoom(sessionID string) RoomKey {
	return RoomKey(string(KindInstant) + ":" + sessionID)
}

// Parse splits a key into its parts and validates every segment.
func (k RoomKey) Parse() (kind SessionKind, sessionID, breakoutID string, err error) {
	head, sid, ok := strings.Cut(string(k), ":")
	if !ok {
		return "", "", "", errors.Wrapf(ErrInvalid, "room key %q", k)
	}
	if kind, err = ParseSessionKind(head); err != nil {
		return "", "", "", errors.Wrapf(ErrInvalid, "room key %q", k)
	}
	if kind == KindRegular {
		sid, breakoutID, _ = strings.Cut(sid, breakoutSep)
		if strings.Contains(string(k), breakoutSep) && !ValidSegment(breakoutID) {
			return "", "", "", errors.Wrapf(ErrInvalid, "room key %q", k)
		}
	}
	if !ValidSegment(sid) {
		return "", "", "", errors.Wrapf(ErrInvalid, "room key %q", k)
	}
	return kind, sid, breakoutID, nil
}

// Room is the in-memory relay group descriptor.
type Room struct {
	Key     RoomKey    `json:"key"`
	Session SessionKey `json:"session"`
	Parent  RoomKey    `json:"parent,omitempty"`
	Active  bool       `json:"active"`
}

// NewRoom builds the descriptor of a key, rejecting malformed keys.
func NewRoom(key RoomKey) (*Room, error) {
	kind, sid, bid, err := key.Parse()
	if err != nil {
		return nil, err
	}
	r := &Room{Key: key, Session: SessionKey{Kind: kind, ID: sid}, Active: true}
	if bid != "" {
		r.Parent = MainRoom(sid)
	}
	return r, nil
}
