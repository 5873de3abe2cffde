package interactive

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// PacketTypeMethod identifies a method invocation packet.
	PacketTypeMethod = "method"
	// PacketTypeReply identifies a reply to an earlier method packet.
	PacketTypeReply = "reply"
)

// Server-to-client methods.
const (
	MethodHello               = "hello"
	MethodOnReady             = "onReady"
	MethodOnParticipantJoin   = "onParticipantJoin"
	MethodOnParticipantLeave  = "onParticipantLeave"
	MethodOnParticipantUpdate = "onParticipantUpdate"
	MethodGiveInput           = "giveInput"
)

// Client-to-server methods.
const (
	MethodReady   = "ready"
	MethodCapture = "capture"
	MethodGetTime = "getTime"
)

// State is the protocol-level connection state reported to handlers.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Input is one participant input event.
type Input struct {
	ControlID     string
	Kind          string
	Event         string
	ParticipantID string
	TransactionID string
	// Raw is the complete giveInput params object.
	Raw []byte
}

// Participant describes a viewer attached to the experience.
type Participant struct {
	SessionID string
	UserID    uint64
	Username  string
	Level     int
	GroupID   string
	Disabled  bool
}

// ParticipantAction says what happened to a participant.
type ParticipantAction int

const (
	ParticipantJoin ParticipantAction = iota
	ParticipantLeave
	ParticipantUpdate
)

func (a ParticipantAction) String() string {
	switch a {
	case ParticipantJoin:
		return "join"
	case ParticipantLeave:
		return "leave"
	case ParticipantUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Handlers receive dispatched protocol events. They run on the goroutine calling Pump.
// Any handler may be nil.
type Handlers struct {
	OnStateChanged        func(previous, current State)
	OnInput               func(Input)
	OnParticipantsChanged func(ParticipantAction, Participant)
	OnError               func(code int, message string)
	OnUnhandledMethod     func(method string, packet []byte)
}

// buildMethod encodes a method packet. params must be a JSON object or empty.
func buildMethod(id uint32, method string, params string, discard bool) ([]byte, error) {
	packet := `{"type":"method"}`
	var err error
	if packet, err = sjson.Set(packet, "id", id); err != nil {
		return nil, err
	}
	if packet, err = sjson.Set(packet, "method", method); err != nil {
		return nil, err
	}
	if params == "" {
		params = "{}"
	}
	if packet, err = sjson.SetRaw(packet, "params", params); err != nil {
		return nil, err
	}
	if packet, err = sjson.Set(packet, "discard", discard); err != nil {
		return nil, err
	}
	return []byte(packet), nil
}

func parseParticipant(p gjson.Result) Participant {
	return Participant{
		SessionID: p.Get("sessionID").String(),
		UserID:    p.Get("userID").Uint(),
		Username:  p.Get("username").String(),
		Level:     int(p.Get("level").Int()),
		GroupID:   p.Get("groupID").String(),
		Disabled:  p.Get("disabled").Bool(),
	}
}

func parseInput(params gjson.Result) Input {
	input := params.Get("input")
	event := input.Get("event").String()
	return Input{
		ControlID:     input.Get("controlID").String(),
		Kind:          inputKind(event),
		Event:         event,
		ParticipantID: params.Get("participantID").String(),
		TransactionID: params.Get("transactionID").String(),
		Raw:           []byte(params.Raw),
	}
}

func inputKind(event string) string {
	switch event {
	case "mousedown", "mouseup", "keydown", "keyup":
		return "button"
	case "move":
		return "joystick"
	default:
		return "custom"
	}
}
