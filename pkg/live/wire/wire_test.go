package wire

import (
	"testing"
)

func TestDecodeServerFrame(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, ev Event)
	}{
		{
			name: "audio delta",
			data: `{"type":"audio_delta","data":"AAAA"}`,
			check: func(t *testing.T, ev Event) {
				delta, ok := ev.(AudioDeltaEvent)
				if !ok {
					t.Fatalf("got %T, want AudioDeltaEvent", ev)
				}
				if delta.DataB64 != "AAAA" {
					t.Fatalf("data=%q", delta.DataB64)
				}
			},
		},
		{
			name: "transcript delta",
			data: `{"type":"transcript_delta","speaker":"agent","text":"Hel"}`,
			check: func(t *testing.T, ev Event) {
				delta, ok := ev.(TranscriptDeltaEvent)
				if !ok {
					t.Fatalf("got %T, want TranscriptDeltaEvent", ev)
				}
				if delta.Speaker != SpeakerAgent || delta.Text != "Hel" {
					t.Fatalf("delta=%+v", delta)
				}
			},
		},
		{
			name: "transcript delta normalizes speaker case",
			data: `{"type":"transcript_delta","speaker":"User","text":"hi"}`,
			check: func(t *testing.T, ev Event) {
				if delta := ev.(TranscriptDeltaEvent); delta.Speaker != SpeakerUser {
					t.Fatalf("speaker=%q", delta.Speaker)
				}
			},
		},
		{
			name: "turn complete",
			data: `{"type":"turn_complete"}`,
			check: func(t *testing.T, ev Event) {
				if _, ok := ev.(TurnCompleteEvent); !ok {
					t.Fatalf("got %T, want TurnCompleteEvent", ev)
				}
			},
		},
		{
			name: "interrupted",
			data: `{"type":"interrupted"}`,
			check: func(t *testing.T, ev Event) {
				if _, ok := ev.(InterruptedEvent); !ok {
					t.Fatalf("got %T, want InterruptedEvent", ev)
				}
			},
		},
		{
			name: "error frame",
			data: `{"type":"error","code":"overloaded","message":"try later"}`,
			check: func(t *testing.T, ev Event) {
				msg := ev.(ErrorEvent)
				if msg.Code != "overloaded" || msg.Message != "try later" {
					t.Fatalf("error=%+v", msg)
				}
			},
		},
		{
			name: "unknown type is preserved",
			data: `{"type":"usage_report","tokens":12}`,
			check: func(t *testing.T, ev Event) {
				unknown, ok := ev.(UnknownEvent)
				if !ok {
					t.Fatalf("got %T, want UnknownEvent", ev)
				}
				if unknown.Type != "usage_report" {
					t.Fatalf("type=%q", unknown.Type)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeServerFrame([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeServerFrame: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeServerFrameRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"notype":true}`,
		`{"type":"transcript_delta","speaker":"narrator","text":"x"}`,
	} {
		if _, err := DecodeServerFrame([]byte(data)); err == nil {
			t.Fatalf("expected decode error for %q", data)
		}
	}
}

func TestNewSetup(t *testing.T) {
	setup := NewSetup(VoiceKore)
	if setup.Type != "setup" || setup.Voice != VoiceKore {
		t.Fatalf("setup=%+v", setup)
	}
	if setup.ResponseModality != ResponseModalityAudio {
		t.Fatalf("modality=%q", setup.ResponseModality)
	}
	if !setup.InputTranscription || !setup.OutputTranscription {
		t.Fatal("transcription must be enabled on both directions")
	}
	if setup.AudioIn.SampleRateHz != 16000 || setup.AudioOut.SampleRateHz != 24000 {
		t.Fatalf("audio formats in=%d out=%d", setup.AudioIn.SampleRateHz, setup.AudioOut.SampleRateHz)
	}
}

func TestValidVoice(t *testing.T) {
	for _, v := range Voices() {
		if !ValidVoice(v) {
			t.Fatalf("catalog voice %q rejected", v)
		}
	}
	if ValidVoice("Narrator") {
		t.Fatal("unknown voice accepted")
	}
}
