// Package classify forwards waste photos to the image classification service.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/config"
)

const (
	// TopN is how many labels a classification keeps.
	TopN = 5

	maxImageBytes = 10 << 20
)

type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.ClassifierConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Classify uploads the image as the multipart field "file" and returns the
// highest scoring labels, best first.
func (c *Client) Classify(ctx context.Context, filename string, image io.Reader) ([]Prediction, error) {
	data, err := io.ReadAll(io.LimitReader(image, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("image is empty")
	}
	if len(data) > maxImageBytes {
		return nil, apperr.Validation("image is larger than %d bytes", maxImageBytes)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return nil, fmt.Errorf("build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.External("classifier", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.External("classifier", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperr.External("classifier", fmt.Errorf("decode response: %w", err))
	}

	return parse(raw)
}

// parse turns the classifier's {label: score} object into a ranked list. The
// service reports failures with a 200 and an "error" key.
func parse(raw map[string]json.RawMessage) ([]Prediction, error) {
	if msg, ok := raw["error"]; ok {
		var text string
		json.Unmarshal(msg, &text)
		return nil, apperr.External("classifier", fmt.Errorf("%s", text))
	}

	predictions := make([]Prediction, 0, len(raw))
	for label, value := range raw {
		var score float64
		if err := json.Unmarshal(value, &score); err != nil {
			return nil, apperr.External("classifier", fmt.Errorf("score for %q is not a number", label))
		}
		if score < 0 || score > 1 {
			return nil, apperr.External("classifier", fmt.Errorf("score for %q out of range: %v", label, score))
		}
		predictions = append(predictions, Prediction{Label: label, Score: score})
	}
	if len(predictions) == 0 {
		return nil, apperr.External("classifier", fmt.Errorf("no predictions"))
	}

	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].Score != predictions[j].Score {
			return predictions[i].Score > predictions[j].Score
		}
		return predictions[i].Label < predictions[j].Label
	})

	if len(predictions) > TopN {
		predictions = predictions[:TopN]
	}
	return predictions, nil
}
