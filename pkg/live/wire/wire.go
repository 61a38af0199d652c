// Package wire defines the message shapes exchanged with the remote
// conversational agent over the live channel.
//
// The channel carries JSON text frames. Each frame is an envelope with a
// "type" discriminator; audio payloads are base64-encoded 16-bit signed
// little-endian PCM, mono. The client sends audio at 16 kHz and receives
// agent audio at 24 kHz.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	// MimePCM16Mic tags outbound capture audio frames.
	MimePCM16Mic = "audio/pcm;rate=16000"

	CaptureSampleRateHz  = 16000
	PlaybackSampleRateHz = 24000

	ResponseModalityAudio = "audio"
)

// Speaker identifies which side of the conversation produced a transcript
// fragment.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Voice is one of the fixed named agent voices.
type Voice string

const (
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceKore   Voice = "Kore"
	VoiceFenrir Voice = "Fenrir"
	VoiceAoede  Voice = "Aoede"
)

// Voices returns the selectable voice catalog.
func Voices() []Voice {
	return []Voice{VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir, VoiceAoede}
}

// ValidVoice reports whether name is one of the catalog voices.
func ValidVoice(name Voice) bool {
	for _, v := range Voices() {
		if v == name {
			return true
		}
	}
	return false
}

// DecodeError describes a malformed channel frame.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badFrame(format string, args ...any) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: fmt.Sprintf(format, args...)}
}

// AudioFormat describes a negotiated audio stream shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// Setup is the first client frame; it configures the session.
type Setup struct {
	Type                string      `json:"type"`
	ProtocolVersion     string      `json:"protocol_version"`
	Voice               Voice       `json:"voice"`
	ResponseModality    string      `json:"response_modality"`
	InputTranscription  bool        `json:"input_transcription"`
	OutputTranscription bool        `json:"output_transcription"`
	AudioIn             AudioFormat `json:"audio_in"`
	AudioOut            AudioFormat `json:"audio_out"`
}

// NewSetup builds the session setup frame for the selected voice:
// audio-only responses with input and output transcription enabled.
func NewSetup(voice Voice) Setup {
	return Setup{
		Type:                "setup",
		ProtocolVersion:     ProtocolVersion1,
		Voice:               voice,
		ResponseModality:    ResponseModalityAudio,
		InputTranscription:  true,
		OutputTranscription: true,
		AudioIn: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: CaptureSampleRateHz,
			Channels:     1,
		},
		AudioOut: AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: PlaybackSampleRateHz,
			Channels:     1,
		},
	}
}

// ClientAudioDelta is an outbound captured audio frame.
type ClientAudioDelta struct {
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
	DataB64  string `json:"data"`
}

type serverSetupAck struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

type serverAudioDelta struct {
	Type    string `json:"type"`
	DataB64 string `json:"data"`
}

type serverTranscriptDelta struct {
	Type    string  `json:"type"`
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverClosed struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// Event is a decoded inbound channel frame.
type Event interface {
	eventType() string
}

// SetupAckEvent confirms the session setup was accepted.
type SetupAckEvent struct{ SessionID string }

func (SetupAckEvent) eventType() string { return "setup_ack" }

// AudioDeltaEvent carries one base64 PCM16 agent audio frame.
type AudioDeltaEvent struct{ DataB64 string }

func (AudioDeltaEvent) eventType() string { return "audio_delta" }

// TranscriptDeltaEvent carries one speaker-tagged transcript fragment.
type TranscriptDeltaEvent struct {
	Speaker Speaker
	Text    string
}

func (TranscriptDeltaEvent) eventType() string { return "transcript_delta" }

// TurnCompleteEvent marks the end of the current conversation turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) eventType() string { return "turn_complete" }

// InterruptedEvent signals the user began speaking over the agent; all
// pending playback must stop immediately.
type InterruptedEvent struct{}

func (InterruptedEvent) eventType() string { return "interrupted" }

// ErrorEvent is a transport-level failure reported by the agent link.
type ErrorEvent struct {
	Code    string
	Message string
}

func (ErrorEvent) eventType() string { return "error" }

// ClosedEvent is a graceful remote close.
type ClosedEvent struct{ Reason string }

func (ClosedEvent) eventType() string { return "closed" }

// UnknownEvent preserves frames this client does not understand.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// DecodeServerFrame decodes one inbound text frame into a typed Event.
func DecodeServerFrame(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badFrame("decode frame envelope: %v", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badFrame("frame missing type")
	}

	switch typ {
	case "setup_ack":
		var ack serverSetupAck
		if err := json.Unmarshal(data, &ack); err != nil {
			return nil, badFrame("decode setup_ack: %v", err)
		}
		return SetupAckEvent{SessionID: ack.SessionID}, nil
	case "audio_delta":
		var delta serverAudioDelta
		if err := json.Unmarshal(data, &delta); err != nil {
			return nil, badFrame("decode audio_delta: %v", err)
		}
		return AudioDeltaEvent{DataB64: delta.DataB64}, nil
	case "transcript_delta":
		var delta serverTranscriptDelta
		if err := json.Unmarshal(data, &delta); err != nil {
			return nil, badFrame("decode transcript_delta: %v", err)
		}
		speaker := Speaker(strings.ToLower(strings.TrimSpace(string(delta.Speaker))))
		if speaker != SpeakerUser && speaker != SpeakerAgent {
			return nil, badFrame("transcript_delta has unknown speaker %q", delta.Speaker)
		}
		return TranscriptDeltaEvent{Speaker: speaker, Text: delta.Text}, nil
	case "turn_complete":
		return TurnCompleteEvent{}, nil
	case "interrupted":
		return InterruptedEvent{}, nil
	case "error":
		var msg serverError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("decode error frame: %v", err)
		}
		return ErrorEvent{Code: msg.Code, Message: msg.Message}, nil
	case "closed":
		var msg serverClosed
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("decode closed frame: %v", err)
		}
		return ClosedEvent{Reason: msg.Reason}, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
