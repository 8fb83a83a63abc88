package questions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks JSON over HTTP to the generation service.
type Client struct {
	url          string
	subtopicsURL string
	client       *http.Client
}

func NewClient(url, subtopicsURL string) *Client {
	return &Client{
		url:          url,
		subtopicsURL: subtopicsURL,
		client: &http.Client{
			// Generation goes through an LLM backend; it is slow.
			Timeout: 90 * time.Second,
		},
	}
}

type generateRequest struct {
	Topic      string   `json:"topic"`
	Subtopics  []string `json:"subtopics"`
	N          int      `json:"n"`
	Difficulty string   `json:"difficulty"`
}

type generateResponse struct {
	Questions []Question `json:"questions"`
}

func (c *Client) Generate(ctx context.Context, topic string, subtopics []string, n int, difficulty string) ([]Question, error) {
	body, err := json.Marshal(generateRequest{
		Topic:      topic,
		Subtopics:  subtopics,
		N:          n,
		Difficulty: difficulty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("question service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("question service returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}
	if len(out.Questions) == 0 {
		return nil, fmt.Errorf("question service returned no questions")
	}
	return out.Questions, nil
}

type subtopicsRequest struct {
	Topic string `json:"topic"`
}

type subtopicsResponse struct {
	Subtopics []string `json:"subtopics"`
}

func (c *Client) GenerateSubtopics(ctx context.Context, topic string) ([]string, error) {
	body, err := json.Marshal(subtopicsRequest{Topic: topic})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subtopic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.subtopicsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build subtopic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subtopic service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subtopic service returned status %d", resp.StatusCode)
	}

	var out subtopicsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode subtopic response: %w", err)
	}
	if len(out.Subtopics) == 0 {
		return nil, fmt.Errorf("subtopic service returned no subtopics")
	}
	return out.Subtopics, nil
}
