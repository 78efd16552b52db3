package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrUnknownEvent - тип события не из списка EventTypes
var ErrUnknownEvent = errors.New("protocol: unknown event type")

// ToStruct преобразует событие в protobuf Struct
func ToStruct(ev *GameEvent) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"type":       string(ev.Type),
		"session_id": ev.SessionID,
		"level_id":   ev.LevelID,
		"tick":       float64(ev.Tick),
		"moves":      float64(ev.Moves),
		"timestamp":  float64(ev.Timestamp),
	}
	if ev.Direction != "" {
		fields["direction"] = ev.Direction
	}
	if ev.Reason != "" {
		fields["reason"] = ev.Reason
	}
	if ev.Pose != "" {
		fields["pose"] = ev.Pose
	}
	return structpb.NewStruct(fields)
}

// FromStruct собирает событие из protobuf Struct
func FromStruct(s *structpb.Struct) (*GameEvent, error) {
	f := s.GetFields()
	ev := &GameEvent{
		Type:      EventType(f["type"].GetStringValue()),
		SessionID: f["session_id"].GetStringValue(),
		LevelID:   f["level_id"].GetStringValue(),
		Tick:      uint64(f["tick"].GetNumberValue()),
		Direction: f["direction"].GetStringValue(),
		Reason:    f["reason"].GetStringValue(),
		Pose:      f["pose"].GetStringValue(),
		Moves:     int(f["moves"].GetNumberValue()),
		Timestamp: int64(f["timestamp"].GetNumberValue()),
	}
	if !ev.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return ev, nil
}

// EncodeEvent сериализует событие в формат Protocol Buffers
func EncodeEvent(ev *GameEvent) ([]byte, error) {
	if !ev.Type.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	s, err := ToStruct(ev)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события: %w", err)
	}
	return data, nil
}

// DecodeEvent десериализует событие из Protocol Buffers
func DecodeEvent(data []byte) (*GameEvent, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("ошибка десериализации события: %w", err)
	}
	return FromStruct(s)
}
