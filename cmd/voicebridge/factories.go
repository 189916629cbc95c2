package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/curalink/voicebridge/pkg/asr"
	"github.com/curalink/voicebridge/pkg/config"
	"github.com/curalink/voicebridge/pkg/configutil"
	"github.com/curalink/voicebridge/pkg/llm"
	"github.com/curalink/voicebridge/pkg/providers/deepgram"
	"github.com/curalink/voicebridge/pkg/providers/mock"
	"github.com/curalink/voicebridge/pkg/providers/openai"
)

type deepgramSettings struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	Language       string `mapstructure:"language"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Encoding       string `mapstructure:"encoding"`
	Interim        *bool  `mapstructure:"interim"`
	UtteranceEndMS *int   `mapstructure:"utterance_end_ms"`
}

type openAISettings struct {
	APIKey            string `mapstructure:"api_key"`
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	UseCircuitBreaker *bool  `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int    `mapstructure:"circuit_threshold"`
	CircuitCooldownMS int    `mapstructure:"circuit_cooldown_ms"`
}

type mockASRSettings struct {
	Transcript    string `mapstructure:"transcript"`
	EmitInterim   *bool  `mapstructure:"emit_interim"`
	FinalizeAfter int    `mapstructure:"finalize_after"`
}

type mockLLMSettings struct {
	StreamChunks []string `mapstructure:"stream_chunks"`
	ChunkDelayMS int      `mapstructure:"chunk_delay_ms"`
}

// recognizerFactory builds a fresh vendor client per session.
type recognizerFactory func(sessionID, traceID string) (asr.Recognizer, error)

func buildRecognizerFactory(vendor config.VendorConfig) (recognizerFactory, error) {
	switch strings.ToLower(strings.TrimSpace(vendor.Provider)) {
	case "deepgram":
		var settings deepgramSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.asr.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.asr.settings.model"); err != nil {
			return nil, err
		}
		if !validDeepgramEncoding(settings.Encoding) {
			return nil, fmt.Errorf("vendors.asr.settings.encoding must be one of [linear16, mulaw], got %s", settings.Encoding)
		}
		interim := configutil.BoolValue(settings.Interim, true)
		utteranceEnd := configutil.IntValue(settings.UtteranceEndMS, 1000)
		return func(sessionID, traceID string) (asr.Recognizer, error) {
			return deepgram.New(deepgram.Config{
				APIKey:         settings.APIKey,
				Model:          settings.Model,
				Language:       settings.Language,
				SampleRate:     settings.SampleRate,
				Encoding:       settings.Encoding,
				Interim:        interim,
				UtteranceEndMS: utteranceEnd,
				SessionID:      sessionID,
				TraceID:        traceID,
			}, nil), nil
		}, nil
	case "mock":
		var settings mockASRSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, err
		}
		emitInterim := configutil.BoolValue(settings.EmitInterim, true)
		return func(sessionID, traceID string) (asr.Recognizer, error) {
			return mock.NewRecognizer(mock.RecognizerConfig{
				Transcript:    settings.Transcript,
				EmitInterim:   emitInterim,
				FinalizeAfter: settings.FinalizeAfter,
			}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown asr provider %q", vendor.Provider)
	}
}

func buildLLMAdapter(vendor config.VendorConfig) (llm.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(vendor.Provider)) {
	case "openai":
		var settings openAISettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.llm.settings.model"); err != nil {
			return nil, err
		}
		return openai.NewAdapter(openai.Config{
			APIKey:            settings.APIKey,
			Model:             settings.Model,
			BaseURL:           settings.BaseURL,
			UseCircuitBreaker: configutil.BoolValue(settings.UseCircuitBreaker, true),
			CircuitThreshold:  settings.CircuitThreshold,
			CircuitCooldown:   time.Duration(settings.CircuitCooldownMS) * time.Millisecond,
		}), nil
	case "mock":
		var settings mockLLMSettings
		if err := configutil.DecodeSettings(vendor.Settings, &settings); err != nil {
			return nil, err
		}
		return mock.NewLLMAdapter(mock.LLMConfig{
			StreamChunks: settings.StreamChunks,
			ChunkDelay:   time.Duration(settings.ChunkDelayMS) * time.Millisecond,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", vendor.Provider)
	}
}

func validDeepgramEncoding(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "linear16", "mulaw", "":
		return true
	default:
		return false
	}
}
