package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Inbound (client -> relay).
	TypeInit        MessageType = "init"
	TypeMedia       MessageType = "media"
	TypeMediaCommit MessageType = "media_commit"
	TypeStop        MessageType = "stop"

	// Outbound (relay -> client). Upstream events are forwarded verbatim and
	// keep whatever type the upstream assigned them.
	TypeInitOK            MessageType = "init_ok"
	TypeOutputAudioBinary MessageType = "output_audio_binary"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Init carries the subject identity for one logical session. A later init
// supersedes an earlier one; nothing is retained across them.
type Init struct {
	Type       MessageType `json:"type"`
	Name       string      `json:"name"`
	BirthDate  string      `json:"dob"`
	BirthTime  string      `json:"tob"`
	BirthPlace string      `json:"pob"`
	Gender     string      `json:"gender"`
	Voice      string      `json:"voice"`
}

// Media carries one base64 PCM audio chunk.
type Media struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"`
}

type MediaCommit struct {
	Type MessageType `json:"type"`
}

type Stop struct {
	Type MessageType `json:"type"`
}

type InitOK struct {
	Type MessageType `json:"type"`
}

// OutputAudioBinary wraps a raw binary upstream frame for JSON delivery.
type OutputAudioBinary struct {
	Type       MessageType `json:"type"`
	Data       string      `json:"data"`
	SampleRate int         `json:"sampleRate,omitempty"`
}

// ParseClientMessage decodes an inbound envelope into its typed form.
// Unknown types return ErrUnsupportedType so the relay can ignore them
// without tearing down the connection.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeInit:
		var msg Init
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeMedia:
		var msg Media
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Data == "" {
			return nil, errors.New("invalid media: empty data")
		}
		return msg, nil
	case TypeMediaCommit:
		return MediaCommit{Type: TypeMediaCommit}, nil
	case TypeStop:
		return Stop{Type: TypeStop}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
