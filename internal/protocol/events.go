package protocol

// EventType - тип игрового события. Совпадает с Envelope.EventType шины.
type EventType string

const (
	EventMoveAccepted        EventType = "move.accepted"
	EventMoveRejected        EventType = "move.rejected"
	EventTransitionCompleted EventType = "transition.completed"
	EventLevelCompleted      EventType = "level.completed"
	EventSessionReset        EventType = "session.reset"
)

// EventTypes - все известные типы событий
var EventTypes = []EventType{
	EventMoveAccepted,
	EventMoveRejected,
	EventTransitionCompleted,
	EventLevelCompleted,
	EventSessionReset,
}

// Known проверяет, что тип события известен
func (t EventType) Known() bool {
	for _, et := range EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// GameEvent - полезная нагрузка события сессии
type GameEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	LevelID   string    `json:"level_id"`
	Tick      uint64    `json:"tick"`
	Direction string    `json:"direction,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Pose      string    `json:"pose,omitempty"`
	Moves     int       `json:"moves"`
	Timestamp int64     `json:"timestamp"`
}
