package domain

import "time"

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User     User       `json:"user"`
	Role     Role       `json:"role"`
	Room     RoomKey    `json:"room"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user User, role Role, room RoomKey, joinedAt time.Time) *Member {
	return &Member{User: user, Role: role, Room: room, JoinedAt: joinedAt}
}

func (m *Member) Connected() bool { return m.LeftAt == nil }
