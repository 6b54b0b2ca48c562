// Package speech provides the two synthesis capabilities behind the
// narration pipeline: a networked HTTP backend returning encoded audio and an
// on-device realtime engine speaking at playback time.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/narrator/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/synthesize"
	apiVoices     = "/v1/voices"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	acceptAudio       = "audio/*"
	audioPrefix       = "audio/"
)

// Default values.
const (
	defaultSpeed    = 1.0
	defaultLanguage = "en"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "%w: %s: %s (code: %s)"
	errFmtServiceNonOKStatus   = "%w: non-OK status %s, body: %s"
	errFmtUnexpectedMediaType  = "unexpected content type: expected audio/*, got %s"
)

// Static errors.
var (
	ErrTextEmpty          = errors.New("text cannot be empty")
	ErrVoiceEmpty         = errors.New("voice id cannot be empty")
	ErrReceivedEmptyAudio = errors.New("received empty audio data")
)

// HTTPSynthesizer implements core.NetworkedSpeech against a remote synthesis
// service with a configurable base endpoint.
type HTTPSynthesizer struct {
	httpClient *http.Client
	baseURL    string
}

// synthesizeRequest is the JSON payload for synthesis requests.
type synthesizeRequest struct {
	Text      string  `json:"text"`
	VoiceID   string  `json:"voice_id"`
	Speed     float64 `json:"speed"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Language  string  `json:"language"`
}

// serviceErrorResponse is the structured error body the service returns on
// failures; kept for actionable diagnostics.
type serviceErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// voiceResponse mirrors one entry of the service's voice listing, including
// speaker rosters for multi-speaker voices.
type voiceResponse struct {
	ID       string            `json:"id"`
	Language string            `json:"language"`
	Speakers map[string]string `json:"speakers,omitempty"`
}

// NewHTTPSynthesizer creates a client for the service at baseURL (protocol
// and port included). The timeout applies to every request.
func NewHTTPSynthesizer(baseURL string, timeout time.Duration) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends one chunk of text and returns the encoded audio bytes with
// their content type. Failures surface the service's status and body wrapped
// in core.ErrBackendFailure.
func (c *HTTPSynthesizer) Synthesize(
	ctx context.Context,
	text, voiceID string,
	speed float64,
	speaker string,
) ([]byte, string, error) {
	if text == "" {
		return nil, "", ErrTextEmpty
	}

	if voiceID == "" {
		return nil, "", ErrVoiceEmpty
	}

	if speed == 0 {
		speed = defaultSpeed
	}

	requestBody, err := json.Marshal(synthesizeRequest{
		Text:      text,
		VoiceID:   voiceID,
		Speed:     speed,
		SpeakerID: speaker,
		Language:  defaultLanguage,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, acceptAudio)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf(
			"%w: request to %s failed: %w", core.ErrBackendFailure, c.baseURL, err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, audioPrefix) {
		return nil, "", fmt.Errorf(errFmtUnexpectedMediaType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, "", ErrReceivedEmptyAudio
	}

	return audioData, contentType, nil
}

// ListVoices returns the service's voice catalog, including multi-speaker
// rosters.
func (c *HTTPSynthesizer) ListVoices(ctx context.Context) ([]core.VoiceDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiVoices, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: voices request to %s failed: %w", core.ErrBackendFailure, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var voices []voiceResponse

	err = json.NewDecoder(resp.Body).Decode(&voices)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voices response: %w", err)
	}

	descriptors := make([]core.VoiceDescriptor, 0, len(voices))
	for _, voice := range voices {
		descriptors = append(descriptors, core.VoiceDescriptor{
			Engine:   core.EngineNetworked,
			ID:       voice.ID,
			Language: voice.Language,
			Speakers: voice.Speakers,
		})
	}

	return descriptors, nil
}

// Health verifies the service is reachable and reports healthy. Batch
// generation performs this check first to fail fast.
func (c *HTTPSynthesizer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check for %s failed: %w", core.ErrBackendFailure, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check status %s", core.ErrBackendFailure, resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error from the service,
// falling back to the raw body so diagnostics are never lost.
func (c *HTTPSynthesizer) parseErrorResponse(resp *http.Response) error {
	var errorResp serviceErrorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			core.ErrBackendFailure, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(errFmtServiceNonOKStatus, core.ErrBackendFailure, resp.Status, string(body))
}
