// Package ai generates and revises promotional summaries through an
// OpenAI-compatible chat completions API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator_bot/internal/model"
)

const maxBodySize = 1 * 1024 * 1024

// RejectionError is returned when the summarizer decides the project does
// not belong in the channel. It is a terminal outcome for the submission,
// not a transient failure.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "repository rejected: " + e.Reason
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Summarizer produces a promotional summary for a repository.
type Summarizer interface {
	Summarize(ctx context.Context, repo *model.Repository) (*model.Summary, error)
}

// Reviser rewrites a summary according to free-text instructions.
type Reviser interface {
	Revise(ctx context.Context, repo *model.Repository, summary *model.Summary, instructions string) (*model.Summary, error)
}

// Client implements Summarizer and Reviser against a chat completions
// endpoint.
type Client struct {
	client        HTTPClient
	apiKey        string
	baseURL       string
	summaryModel  string
	revisionModel string
	timeout       time.Duration
}

// New creates a Client for the given endpoint and models.
func New(client HTTPClient, apiKey, baseURL, summaryModel, revisionModel string) *Client {
	return &Client{
		client:        client,
		apiKey:        apiKey,
		baseURL:       strings.TrimRight(baseURL, "/"),
		summaryModel:  summaryModel,
		revisionModel: revisionModel,
		timeout:       90 * time.Second,
	}
}

// SummaryModel returns the model name used for summaries.
func (c *Client) SummaryModel() string { return c.summaryModel }

// RevisionModel returns the model name used for revisions.
func (c *Client) RevisionModel() string { return c.revisionModel }

const summaryInstructions = `You curate an Android open-source channel. Given repository metadata,
either produce a promotional summary or reject the project.

Reject when the project is not an Android application or tool useful to
Android users. Respond with JSON only, in this shape:

{"rejected": false, "reason": "", "summary": {"project_name": "...",
"description": "2-3 sentences", "features": ["..."], "tags": ["..."],
"links": ["..."]}}

When rejecting, set "rejected" to true, give a short reason, and omit the
summary.`

const revisionInstructions = `You revise a promotional summary for an Android open-source channel.
Apply the user's instructions to the current summary and return the whole
revised summary. Respond with JSON only:

{"rejected": false, "reason": "", "summary": {"project_name": "...",
"description": "...", "features": ["..."], "tags": ["..."], "links": ["..."]}}`

// Summarize generates a summary for the repository. A *RejectionError is
// returned when the model rejects the project.
func (c *Client) Summarize(ctx context.Context, repo *model.Repository) (*model.Summary, error) {
	user := repositoryContext(repo)
	return c.complete(ctx, c.summaryModel, summaryInstructions, user)
}

// Revise rewrites the summary according to the instructions, replacing it
// wholesale. The repository identity is not part of the summary and is
// unaffected.
func (c *Client) Revise(ctx context.Context, repo *model.Repository, summary *model.Summary, instructions string) (*model.Summary, error) {
	current, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	user := fmt.Sprintf("%s\n\nCurrent summary:\n%s\n\nInstructions:\n%s",
		repositoryContext(repo), current, instructions)
	return c.complete(ctx, c.revisionModel, revisionInstructions, user)
}

func repositoryContext(repo *model.Repository) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", repo.FullName)
	fmt.Fprintf(&b, "Platform: %s\n", repo.Platform)
	fmt.Fprintf(&b, "URL: %s\n", repo.URL)
	fmt.Fprintf(&b, "Stars: %d\n", repo.Stars)
	if repo.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", repo.Language)
	}
	if repo.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", repo.Description)
	}
	return b.String()
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type summaryPayload struct {
	Rejected bool           `json:"rejected"`
	Reason   string         `json:"reason"`
	Summary  *model.Summary `json:"summary"`
}

func (c *Client) complete(ctx context.Context, modelName, system, user string) (*model.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &payload); err != nil {
		return nil, fmt.Errorf("decode summary payload: %w", err)
	}
	if payload.Rejected {
		return nil, &RejectionError{Reason: payload.Reason}
	}
	if payload.Summary == nil || payload.Summary.ProjectName == "" {
		return nil, fmt.Errorf("summary payload missing project name")
	}
	return payload.Summary, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
