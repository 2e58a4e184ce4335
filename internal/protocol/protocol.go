package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeInput   = "INPUT"
	TypeEvent   = "EVENT"
	TypeError   = "ERROR"
)

// Input actions.
const (
	ActionDodge      = "DODGE"
	ActionAttack     = "ATTACK"
	ActionBlock      = "BLOCK"
	ActionUnblock    = "UNBLOCK"
	ActionUsePowerUp = "USE_POWERUP"
)

// Event types carried by EVENT.
const (
	EventReport   = "REPORT"
	EventKill     = "KILL"
	EventPowerUp  = "POWERUP"
	EventPickup   = "PICKUP"
	EventRespawn  = "RESPAWN"
	EventJoin     = "JOIN"
	EventLeave    = "LEAVE"
	EventActivity = "ACTIVITY"
)

// Activity states carried by ACTIVITY events.
const (
	ActivityStart     = "start"
	ActivityStop      = "stop"
	ActivityInterrupt = "interrupt"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
