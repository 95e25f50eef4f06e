// Package gtranslate provides a tts.Engine backed by the free Google Translate
// speech endpoint. The voice is fixed by the language and the endpoint has no
// rate or pitch controls, so the engine is not tts.Tunable.
package gtranslate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/chattts/pkg/provider/tts"
)

const (
	defaultEndpoint = "https://translate.google.com/translate_tts"
	defaultLanguage = "ko"

	// MaxChunkRunes is the longest text the endpoint accepts per request.
	MaxChunkRunes = 100
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithLanguage sets the tl query parameter (default "ko").
func WithLanguage(lang string) Option {
	return func(e *Engine) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithEndpoint overrides the translate_tts URL. Intended for tests.
func WithEndpoint(u string) Option {
	return func(e *Engine) {
		e.endpoint = u
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// Engine implements tts.Engine for the Google Translate speech endpoint.
type Engine struct {
	endpoint   string
	language   string
	httpClient *http.Client
}

// New creates a new Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		endpoint:   defaultEndpoint,
		language:   defaultLanguage,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Format implements tts.Engine.
func (e *Engine) Format() tts.Format { return tts.FormatMP3 }

// Generate implements tts.Engine. Long texts are split into chunks and the
// returned MP3 streams are concatenated into dst. On failure dst is removed,
// including any file left there by an earlier call.
func (e *Engine) Generate(ctx context.Context, text, dst string) error {
	chunks := Chunk(text, MaxChunkRunes)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: gtranslate: empty text", tts.ErrSynthesis)
	}

	var buf bytes.Buffer
	for i, c := range chunks {
		if err := e.fetch(ctx, c, i, len(chunks), &buf); err != nil {
			_ = os.Remove(dst)
			return err
		}
	}
	return tts.WriteAudio(ctx, dst, &buf)
}

func (e *Engine) fetch(ctx context.Context, chunk string, idx, total int, w io.Writer) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", e.language)
	q.Set("q", chunk)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: gtranslate: build request: %w", tts.ErrSynthesis, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gtranslate: request: %w", tts.ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gtranslate: chunk %d/%d: status %d", tts.ErrSynthesis, idx+1, total, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: gtranslate: read chunk %d/%d: %w", tts.ErrSynthesis, idx+1, total, err)
	}
	return nil
}

// Chunk splits text into pieces of at most max runes, preferring to break at
// whitespace. Words longer than max are cut hard. Blank pieces are dropped.
func Chunk(text string, max int) []string {
	var out []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		if utf8.RuneCountInString(rest) <= max {
			out = append(out, rest)
			break
		}

		cut, lastSpace, n := len(rest), -1, 0
		for pos, r := range rest {
			if n == max {
				cut = pos
				if unicode.IsSpace(r) {
					lastSpace = pos
				}
				break
			}
			if unicode.IsSpace(r) {
				lastSpace = pos
			}
			n++
		}
		if lastSpace > 0 {
			cut = lastSpace
		}

		if piece := strings.TrimSpace(rest[:cut]); piece != "" {
			out = append(out, piece)
		}
		rest = strings.TrimSpace(rest[cut:])
	}
	return out
}

var _ tts.Engine = (*Engine)(nil)
