// Package gcloud provides a Google Cloud Text-to-Speech engine using the
// text:synthesize REST endpoint with service-account credentials. It
// implements tts.Engine and tts.Tunable.
package gcloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

const (
	synthesizeEndpoint  = "https://texttospeech.googleapis.com/v1/text:synthesize"
	cloudPlatformScope  = "https://www.googleapis.com/auth/cloud-platform"
	defaultLanguageCode = "ko-KR"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithLanguageCode sets the BCP-47 language code sent with every request.
func WithLanguageCode(code string) Option {
	return func(e *Engine) {
		if code != "" {
			e.languageCode = code
		}
	}
}

// WithEndpoint overrides the synthesize URL. Intended for tests.
func WithEndpoint(url string) Option {
	return func(e *Engine) {
		e.endpoint = url
	}
}

// WithHTTPClient replaces the authenticated client. The caller becomes
// responsible for authorisation.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// Engine implements tts.Engine backed by Google Cloud Text-to-Speech.
type Engine struct {
	endpoint     string
	languageCode string
	httpClient   *http.Client

	mu    sync.Mutex
	voice string
	rate  float64
	pitch float64
}

// New creates an Engine from a service-account JSON document. Empty or
// malformed credentials fail with tts.ErrConfiguration. The credential
// content is never included in the returned error.
func New(ctx context.Context, credentialsJSON []byte, opts ...Option) (*Engine, error) {
	e := &Engine{
		endpoint:     synthesizeEndpoint,
		languageCode: defaultLanguageCode,
		voice:        tts.DefaultNeuralVoice,
		rate:         1.0,
	}
	for _, o := range opts {
		o(e)
	}
	if e.httpClient != nil {
		return e, nil
	}

	if len(bytes.TrimSpace(credentialsJSON)) == 0 {
		return nil, fmt.Errorf("%w: gcloud: credentials must not be empty", tts.ErrConfiguration)
	}
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("%w: gcloud: parse credentials: %w", tts.ErrConfiguration, err)
	}
	e.httpClient = oauth2.NewClient(context.WithoutCancel(ctx), creds.TokenSource)
	return e, nil
}

// SetVoice implements tts.Tunable.
func (e *Engine) SetVoice(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name != "" {
		e.voice = name
	}
}

// SetRate implements tts.Tunable.
func (e *Engine) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = rate
}

// SetPitch implements tts.Tunable.
func (e *Engine) SetPitch(pitch float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pitch = pitch
}

// Format implements tts.Engine.
func (e *Engine) Format() tts.Format { return tts.FormatMP3 }

type synthesizeRequest struct {
	Input       input       `json:"input"`
	Voice       voice       `json:"voice"`
	AudioConfig audioConfig `json:"audioConfig"`
}

type input struct {
	Text string `json:"text"`
}

type voice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

func (e *Engine) buildRequest(text string) synthesizeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return synthesizeRequest{
		Input: input{Text: text},
		Voice: voice{LanguageCode: e.languageCode, Name: e.voice},
		AudioConfig: audioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  e.rate,
			Pitch:         e.pitch,
		},
	}
}

// Generate implements tts.Engine.
func (e *Engine) Generate(ctx context.Context, text, dst string) error {
	body, err := json.Marshal(e.buildRequest(text))
	if err != nil {
		return fmt.Errorf("%w: gcloud: marshal request: %w", tts.ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: gcloud: build request: %w", tts.ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gcloud: request: %w", tts.ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gcloud: status %d: %s", tts.ErrSynthesis, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: gcloud: decode response: %w", tts.ErrSynthesis, err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return fmt.Errorf("%w: gcloud: decode audio: %w", tts.ErrSynthesis, err)
	}
	return tts.WriteAudio(ctx, dst, bytes.NewReader(audio))
}

var (
	_ tts.Engine  = (*Engine)(nil)
	_ tts.Tunable = (*Engine)(nil)
)
