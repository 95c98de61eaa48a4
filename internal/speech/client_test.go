package speech

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

const testHost = "https://southeastasia.stt.speech.microsoft.com"
const testPath = "/speech/recognition/conversation/cognitiveservices/v1"

func newTestClient() *Client {
	c := NewClient(Config{Region: "southeastasia", SubscriptionKey: "key-1"})
	gock.InterceptClient(c.http)
	return c
}

func TestAssessParsesBestHypothesis(t *testing.T) {
	defer gock.Off()
	c := newTestClient()

	gock.New(testHost).
		Post(testPath).
		MatchParam("language", "en-GB").
		MatchParam("format", "detailed").
		MatchHeader("Ocp-Apim-Subscription-Key", "key-1").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			raw, err := base64.StdEncoding.DecodeString(req.Header.Get("Pronunciation-Assessment"))
			if err != nil {
				return false, err
			}
			var params map[string]string
			if err := json.Unmarshal(raw, &params); err != nil {
				return false, err
			}
			return params["ReferenceText"] == "Good morning" && params["GradingSystem"] == "HundredMark", nil
		}).
		Reply(200).
		JSON(map[string]any{
			"RecognitionStatus": "Success",
			"DisplayText":       "Good morning.",
			"NBest": []map[string]any{{
				"Display":           "Good morning",
				"Confidence":        0.97,
				"PronScore":         88.5,
				"AccuracyScore":     90,
				"FluencyScore":      85,
				"ProsodyScore":      80,
				"CompletenessScore": 100,
				"Words":             []map[string]any{{"Word": "good"}, {"Word": "morning"}},
			}},
		})

	res, err := c.Assess(context.Background(), Input{
		Audio:         []byte("RIFF"),
		ReferenceText: "Good morning",
		Language:      "en-GB",
	})
	require.NoError(t, err)
	require.Equal(t, "Success", res.Status)
	require.Equal(t, "Good morning", res.RecognizedText)
	require.NotNil(t, res.Scores)
	require.Equal(t, 88.5, res.Scores.PronScore)
	require.JSONEq(t, `[{"Word":"good"},{"Word":"morning"}]`, string(res.Words))
	require.True(t, gock.IsDone())
}

func TestAssessWithoutHypothesis(t *testing.T) {
	defer gock.Off()
	c := newTestClient()

	gock.New(testHost).Post(testPath).Reply(200).JSON(map[string]any{
		"RecognitionStatus": "NoMatch",
	})

	res, err := c.Assess(context.Background(), Input{Audio: []byte("x"), ReferenceText: "cat"})
	require.NoError(t, err)
	require.Nil(t, res.Scores)
	require.JSONEq(t, `[]`, string(res.Words))
}

func TestAssessMapsProviderErrors(t *testing.T) {
	cases := []struct {
		status int
		want   *apperrors.AppError
	}{
		{http.StatusBadRequest, apperrors.ErrBadRequest},
		{http.StatusUnauthorized, apperrors.ErrBadRequest},
		{http.StatusForbidden, apperrors.ErrBadRequest},
		{http.StatusTooManyRequests, apperrors.ErrInternalServer},
		{http.StatusBadGateway, apperrors.ErrInternalServer},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			defer gock.Off()
			c := newTestClient()
			gock.New(testHost).Post(testPath).Reply(tc.status).BodyString("nope")

			_, err := c.Assess(context.Background(), Input{Audio: []byte("x"), ReferenceText: "cat"})
			require.Error(t, err)
			appErr := apperrors.FromError(err)
			require.Equal(t, tc.want.StatusCode, appErr.StatusCode)
		})
	}
}

func TestAssessValidatesInput(t *testing.T) {
	c := NewClient(Config{Region: "r", SubscriptionKey: "k"})

	_, err := c.Assess(context.Background(), Input{ReferenceText: "cat"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = c.Assess(context.Background(), Input{Audio: []byte("x")})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	unconfigured := NewClient(Config{})
	_, err = unconfigured.Assess(context.Background(), Input{Audio: []byte("x"), ReferenceText: "cat"})
	require.Error(t, err)
	require.Equal(t, http.StatusInternalServerError, apperrors.FromError(err).StatusCode)
}
