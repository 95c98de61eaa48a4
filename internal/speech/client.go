package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "en-US"

// Config configures the pronunciation assessment client.
type Config struct {
	Region          string
	SubscriptionKey string
	// Endpoint overrides the regional endpoint, mainly for tests.
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the cloud speech recognition endpoint with pronunciation
// assessment enabled.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient returns a client. Missing credentials are reported on first use
// so the rest of the API can run without speech configured.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}
}

// Input is one assessment request.
type Input struct {
	Audio         []byte
	ContentType   string
	ReferenceText string
	Language      string
}

// Scores holds the top hypothesis scores.
type Scores struct {
	PronScore    float64 `json:"pron_score"`
	Accuracy     float64 `json:"accuracy"`
	Fluency      float64 `json:"fluency"`
	Prosody      float64 `json:"prosody"`
	Completeness float64 `json:"completeness"`
	Confidence   float64 `json:"confidence"`
}

// Result is the normalised assessment.
type Result struct {
	Status         string          `json:"status"`
	RecognizedText string          `json:"recognized_text"`
	Scores         *Scores         `json:"scores"`
	Words          json.RawMessage `json:"words"`
	Raw            json.RawMessage `json:"raw"`
}

type assessmentParams struct {
	ReferenceText           string `json:"ReferenceText"`
	GradingSystem           string `json:"GradingSystem"`
	Granularity             string `json:"Granularity"`
	Dimension               string `json:"Dimension"`
	EnableMiscue            string `json:"EnableMiscue"`
	EnableProsodyAssessment string `json:"EnableProsodyAssessment"`
}

type recognition struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Display           string          `json:"Display"`
		Confidence        float64         `json:"Confidence"`
		PronScore         float64         `json:"PronScore"`
		AccuracyScore     float64         `json:"AccuracyScore"`
		FluencyScore      float64         `json:"FluencyScore"`
		ProsodyScore      float64         `json:"ProsodyScore"`
		CompletenessScore float64         `json:"CompletenessScore"`
		Words             json.RawMessage `json:"Words"`
	} `json:"NBest"`
}

func (c *Client) endpoint(language string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.cfg.Endpoint), "/")
	if base == "" {
		region := strings.TrimSpace(c.cfg.Region)
		if region == "" {
			return "", errors.New("speech: region is not configured")
		}
		base = "https://" + region + ".stt.speech.microsoft.com"
	}
	q := url.Values{}
	q.Set("language", language)
	q.Set("format", "detailed")
	return base + "/speech/recognition/conversation/cognitiveservices/v1?" + q.Encode(), nil
}

// Assess uploads the audio and scores it against the reference text.
// Provider 400/401/403 responses become BadRequest; anything else that fails
// becomes an internal error.
func (c *Client) Assess(ctx context.Context, in Input) (*Result, error) {
	if len(in.Audio) == 0 {
		return nil, apperrors.NewBadRequest("audio file is required")
	}
	if strings.TrimSpace(in.ReferenceText) == "" {
		return nil, apperrors.NewBadRequest("reference text is required")
	}
	if strings.TrimSpace(c.cfg.SubscriptionKey) == "" {
		return nil, apperrors.Wrap(errors.New("speech: subscription key is not configured"), "Speech service unavailable")
	}
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = DefaultLanguage
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "audio/wav; codecs=audio/pcm; samplerate=16000"
	}

	target, err := c.endpoint(language)
	if err != nil {
		return nil, apperrors.Wrap(err, "Speech service unavailable")
	}

	params, err := json.Marshal(assessmentParams{
		ReferenceText:           in.ReferenceText,
		GradingSystem:           "HundredMark",
		Granularity:             "Word",
		Dimension:               "Comprehensive",
		EnableMiscue:            "True",
		EnableProsodyAssessment: "True",
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "Speech request failed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(in.Audio))
	if err != nil {
		return nil, apperrors.Wrap(err, "Speech request failed")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(params))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("speech: request: %w", err), "Speech service unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("speech: read response: %w", err), "Speech service unavailable")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("Speech API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return nil, apperrors.NewBadRequest(msg)
		default:
			return nil, apperrors.Wrap(errors.New(msg), "Speech service unavailable")
		}
	}

	var rec recognition
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("speech: decode response: %w", err), "Speech service returned an invalid response")
	}

	result := &Result{
		Status:         rec.RecognitionStatus,
		RecognizedText: rec.DisplayText,
		Words:          json.RawMessage("[]"),
		Raw:            json.RawMessage(body),
	}
	if len(rec.NBest) > 0 {
		best := rec.NBest[0]
		if best.Display != "" {
			result.RecognizedText = best.Display
		}
		result.Scores = &Scores{
			PronScore:    best.PronScore,
			Accuracy:     best.AccuracyScore,
			Fluency:      best.FluencyScore,
			Prosody:      best.ProsodyScore,
			Completeness: best.CompletenessScore,
			Confidence:   best.Confidence,
		}
		if len(best.Words) > 0 {
			result.Words = best.Words
		}
	}
	return result, nil
}
