package domain

import "time"

// Role distinguishes dashboard participant kinds on the presenter channel.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleControl   Role = "control"
	RoleProducer  Role = "producer"
)

// ParseRole maps a wire role string to a known Role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePresenter, RoleControl, RoleProducer:
		return Role(s), true
	default:
		return "", false
	}
}

// PresenceEntry exists only while a connection holds a presenter role.
type PresenceEntry struct {
	ConnectionID string    `json:"connectionId"`
	Role         Role      `json:"role"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	LastActivity time.Time `json:"lastActivity"`
}
