package protocol

import "github.com/bytedance/sonic"

// SessionConfig holds the tunable parts of the session.update frame the
// relay injects after observing session.created. Fixed fields (audio
// formats, transcription model, VAD type) match what the upstream expects
// for a PCM16 voice session.
type SessionConfig struct {
	Instructions      string
	Voice             string
	VADThreshold      float64
	PrefixPaddingMS   int
	SilenceDurationMS int
	Temperature       float64
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string           `json:"modalities"`
	Instructions            string             `json:"instructions"`
	Voice                   string             `json:"voice"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription transcriptionModel `json:"input_audio_transcription"`
	TurnDetection           turnDetection      `json:"turn_detection"`
	Temperature             float64            `json:"temperature,omitempty"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// NewSessionUpdateFrame builds the configuration frame sent upstream once
// per session, strictly after session.created has been observed.
func NewSessionUpdateFrame(cfg SessionConfig) ([]byte, error) {
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.VADThreshold == 0 {
		cfg.VADThreshold = 0.5
	}
	if cfg.PrefixPaddingMS == 0 {
		cfg.PrefixPaddingMS = 300
	}
	if cfg.SilenceDurationMS == 0 {
		cfg.SilenceDurationMS = 500
	}

	return sonic.Marshal(sessionUpdate{
		Type: TypeSessionUpdate,
		Session: sessionParams{
			Modalities:              []string{"text", "audio"},
			Instructions:            cfg.Instructions,
			Voice:                   cfg.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: transcriptionModel{Model: "whisper-1"},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         cfg.VADThreshold,
				PrefixPaddingMS:   cfg.PrefixPaddingMS,
				SilenceDurationMS: cfg.SilenceDurationMS,
			},
			Temperature: cfg.Temperature,
		},
	})
}
