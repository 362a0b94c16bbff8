// Package translate sends content trees to the Google AI (Gemini)
// generateContent API and parses the translated tree out of the reply.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/cruz-resume/resumetl/document"
	"github.com/cruz-resume/resumetl/langmeta"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrMissingCredential is returned by Check when no API key is configured.
var ErrMissingCredential = errors.New("GEMINI_API_KEY not set")

// responseExcerpt bounds how much of a raw reply an Error keeps.
const responseExcerpt = 200

// Error is a failed translation for one language. Transport, provider and
// parse failures are all reported through it.
type Error struct {
	// Lang is the target language code.
	Lang string
	// Err is the underlying cause.
	Err error
	// Response is a bounded prefix of the raw model reply, when one was
	// received but could not be used.
	Response string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("translating to %s: %v", e.Lang, e.Err)
	if e.Response != "" {
		msg += "\nResponse: " + e.Response
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash-exp"
	DefaultTimeout = 120 * time.Second
)

// Provider holds the connection settings for the Gemini API.
type Provider struct {
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is sent in the x-goog-api-key header.
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// GenerationConfig holds the fixed decoding parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// DefaultGenerationConfig favors fidelity over creativity and leaves room
// for the largest content section.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.3,
		TopP:            0.95,
		MaxOutputTokens: 8192,
	}
}

// DefaultProvider returns the Google AI provider with default settings and
// no API key.
func DefaultProvider() Provider {
	return Provider{
		BaseURL: DefaultBaseURL,
		Model:   DefaultModel,
		Timeout: DefaultTimeout,
	}
}

// ---------------------------------------------------------------------------
// Translator
// ---------------------------------------------------------------------------

// Translator turns a source content tree into a tree in another language.
type Translator interface {
	Translate(ctx context.Context, src *document.Node, lang, instruction string) (*document.Node, error)
}

// Gemini is a Translator backed by the generateContent endpoint. It sends
// one request per call and does not retry.
type Gemini struct {
	Provider   Provider
	Generation GenerationConfig
	// Verbose logs each request.
	Verbose bool

	client *http.Client
}

// NewGemini returns a Gemini translator for prov.
func NewGemini(prov Provider, gen GenerationConfig) *Gemini {
	if prov.Timeout <= 0 {
		prov.Timeout = DefaultTimeout
	}
	return &Gemini{
		Provider:   prov,
		Generation: gen,
		client:     makeHTTPClient(prov.Proxy, prov.Timeout),
	}
}

// Check reports ErrMissingCredential if no API key is configured.
func (g *Gemini) Check() error {
	if strings.TrimSpace(g.Provider.APIKey) == "" {
		return ErrMissingCredential
	}
	return nil
}

// Translate sends src with instruction and returns the parsed reply.
func (g *Gemini) Translate(ctx context.Context, src *document.Node, lang, instruction string) (*document.Node, error) {
	if err := g.Check(); err != nil {
		return nil, &Error{Lang: lang, Err: err}
	}

	prompt, err := BuildPrompt(instruction, src, lang)
	if err != nil {
		return nil, &Error{Lang: lang, Err: err}
	}

	text, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, &Error{Lang: lang, Err: err}
	}

	return ParseResponse(lang, text)
}

// ParseResponse cleans a raw model reply and parses it as a content tree.
func ParseResponse(lang, raw string) (*document.Node, error) {
	cleaned := CleanResponse(raw)
	node, err := document.ParseNode([]byte(cleaned))
	if err != nil {
		return nil, &Error{
			Lang:     lang,
			Err:      fmt.Errorf("failed to parse response as JSON: %w", err),
			Response: truncate(cleaned, responseExcerpt),
		}
	}
	return node, nil
}

// ---------------------------------------------------------------------------
// Prompt construction and response cleanup
// ---------------------------------------------------------------------------

// BuildPrompt concatenates the instruction, the source serialized as JSON,
// and a closing directive naming the target language.
func BuildPrompt(instruction string, src *document.Node, lang string) (string, error) {
	body, err := src.MarshalIndent("", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing source content: %w", err)
	}

	target := lang
	if meta := langmeta.Resolve(lang); meta.EnglishName != "" && meta.EnglishName != lang {
		target = fmt.Sprintf("%s (%s)", lang, meta.EnglishName)
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nSource content (Traditional Chinese):\n```json\n")
	b.Write(body)
	b.WriteString("\n```\n\n")
	fmt.Fprintf(&b, "Translate the above JSON to %s. Return ONLY the translated JSON, nothing else.", target)
	return b.String(), nil
}

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```$")
)

// CleanResponse strips a leading code fence (with or without a language
// tag), a trailing fence, and surrounding whitespace.
func CleanResponse(raw string) string {
	s := strings.TrimSpace(raw)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (g *Gemini) endpoint() string {
	base := strings.TrimRight(g.Provider.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, g.Provider.Model)
}

func buildGeminiRequest(prompt string, gen GenerationConfig) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	req := struct {
		Contents         []content        `json:"contents"`
		GenerationConfig GenerationConfig `json:"generationConfig"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: gen,
	}
	return json.Marshal(req)
}

// generate performs one generateContent call and returns the reply text.
func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	body, err := buildGeminiRequest(prompt, g.Generation)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	endpoint := g.endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.Provider.APIKey)

	if g.Verbose {
		log.Printf("[DEBUG] POST %s (model: %s, %d prompt bytes)", endpoint, g.Provider.Model, len(prompt))
	}

	client := g.client
	if client == nil {
		client = makeHTTPClient(g.Provider.Proxy, g.Provider.Timeout)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if msg := gjson.GetBytes(respBody, "error.message"); msg.Exists() {
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, msg.String())
		}
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	return extractResponseText(respBody)
}

// extractResponseText pulls the generated text out of a generateContent
// response body.
func extractResponseText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON response: %s", truncate(string(body), 500))
	}
	res := gjson.ParseBytes(body)

	if msg := res.Get("error.message"); msg.Exists() {
		return "", fmt.Errorf("API error: %s", msg.String())
	}
	if reason := res.Get("promptFeedback.blockReason"); reason.Exists() {
		return "", fmt.Errorf("prompt blocked: %s", reason.String())
	}

	candidate := res.Get("candidates.0")
	if !candidate.Exists() {
		return "", fmt.Errorf("response has no candidates: %s", truncate(string(body), 500))
	}

	var text strings.Builder
	candidate.Get("content.parts.#.text").ForEach(func(_, v gjson.Result) bool {
		text.WriteString(v.String())
		return true
	})
	if text.Len() == 0 {
		reason := candidate.Get("finishReason").String()
		if reason == "" {
			reason = "unknown"
		}
		return "", fmt.Errorf("response has no text (finish reason: %s)", reason)
	}
	return text.String(), nil
}

// truncate truncates a string to at most maxLen bytes without splitting a
// UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
