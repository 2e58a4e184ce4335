package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	// Observer clients receive state and events but get no character.
	Observer    bool   `json:"observer,omitempty"`
	ResumeToken string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	EntityID        string        `json:"entity_id,omitempty"`
	SessionID       string        `json:"session_id"`
	ResumeToken     string        `json:"resume_token,omitempty"`
	TickRateHz      int           `json:"tick_rate_hz"`
	ArenaRadius     float64       `json:"arena_radius"`
	PowerUps        PowerUpDigest `json:"powerups"`
}

// PowerUpDigest lets a client check it assigns power-up ids the same way.
type PowerUpDigest struct {
	Palette []string `json:"palette"`
	Digest  string   `json:"digest"`
}

// INPUT (client -> server)
type InputMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Move            [2]float64 `json:"move"`
	Facing          [2]float64 `json:"facing"`
	Actions         []string   `json:"actions,omitempty"`
}

// EVENT (server -> client): one-shot happenings of a tick.
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}

type Event struct {
	Type      string      `json:"type"`
	Target    string      `json:"target,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	Value     float64     `json:"value,omitempty"`
	Delivered bool        `json:"delivered,omitempty"`
	Lethal    bool        `json:"lethal,omitempty"`
	Blocked   bool        `json:"blocked,omitempty"`
	PowerUp   string      `json:"powerup,omitempty"`
	Cue       string      `json:"cue,omitempty"`
	Radius    float64     `json:"radius,omitempty"`
	Pos       *[2]float64 `json:"pos,omitempty"`
	Activity  string      `json:"activity,omitempty"`
	State     string      `json:"state,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
