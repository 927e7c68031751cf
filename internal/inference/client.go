package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"Meetpulse/internal/model"
)

// Client is a thin typed adapter over the external inference provider.
// Every operation is JSON-in/JSON-out against a fixed endpoint; provider
// response parsing stays inside this package so callers only ever see the
// normalized result shapes.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize condenses a transcript window into a short summary.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/v1/summarize", summarizeRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	if resp.Summary == "" {
		return "", fmt.Errorf("empty summary from provider")
	}
	return resp.Summary, nil
}

type sentimentResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Sentiment classifies the overall sentiment of a transcript window.
func (c *Client) Sentiment(ctx context.Context, text string) (model.SentimentResult, error) {
	var resp sentimentResponse
	if err := c.post(ctx, "/v1/sentiment", summarizeRequest{Text: text}, &resp); err != nil {
		return model.SentimentResult{}, err
	}
	return model.SentimentResult{Label: resp.Label, Score: resp.Score}, nil
}

type topicsResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// Topics runs zero-shot topic classification over a transcript window.
func (c *Client) Topics(ctx context.Context, text string) (model.TopicsResult, error) {
	var resp topicsResponse
	if err := c.post(ctx, "/v1/topics", summarizeRequest{Text: text}, &resp); err != nil {
		return model.TopicsResult{}, err
	}
	return model.TopicsResult{Labels: resp.Labels, Scores: resp.Scores}, nil
}

type actionItemsResponse struct {
	Items []string `json:"items"`
}

// ActionItems extracts action items from a transcript window.
func (c *Client) ActionItems(ctx context.Context, text string) ([]string, error) {
	var resp actionItemsResponse
	if err := c.post(ctx, "/v1/action-items", summarizeRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

type replyRequest struct {
	Text string `json:"text"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// Reply generates a conversational assistant reply to a participant message.
func (c *Client) Reply(ctx context.Context, text string) (string, error) {
	var resp replyResponse
	if err := c.post(ctx, "/v1/reply", replyRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	if resp.Reply == "" {
		return "", fmt.Errorf("empty reply from provider")
	}
	return resp.Reply, nil
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for a text snippet.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	if err := c.post(ctx, "/v1/embed", embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from provider")
	}
	return resp.Embedding, nil
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe runs speech-to-text over a raw audio frame.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var resp transcribeResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling inference provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference provider error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing provider response: %w", err)
	}
	return nil
}
