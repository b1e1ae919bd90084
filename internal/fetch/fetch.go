// Package fetch retrieves repository metadata from the hosting platforms.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"curator_bot/internal/model"
)

// ErrNotFound is returned when the repository does not exist or is not
// visible to the configured credentials.
var ErrNotFound = errors.New("repository not found")

const maxBodySize = 2 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher resolves a repository reference into its metadata.
type Fetcher interface {
	Fetch(ctx context.Context, ref model.RepoRef) (*model.Repository, error)
}

// Client fetches repository metadata from GitHub and GitLab.
type Client struct {
	client      HTTPClient
	githubToken string
	gitlabToken string
	timeout     time.Duration
}

// New creates a Client with the given HTTP client and optional API tokens.
func New(client HTTPClient, githubToken, gitlabToken string) *Client {
	return &Client{
		client:      client,
		githubToken: githubToken,
		gitlabToken: gitlabToken,
		timeout:     30 * time.Second,
	}
}

// Fetch retrieves metadata for the referenced repository.
func (c *Client) Fetch(ctx context.Context, ref model.RepoRef) (*model.Repository, error) {
	switch ref.Platform {
	case model.PlatformGitHub:
		return c.fetchGitHub(ctx, ref)
	case model.PlatformGitLab:
		return c.fetchGitLab(ctx, ref)
	}
	return nil, fmt.Errorf("unsupported platform %q", ref.Platform)
}

type githubRepo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Stars       int    `json:"stargazers_count"`
	Language    string `json:"language"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (c *Client) fetchGitHub(ctx context.Context, ref model.RepoRef) (*model.Repository, error) {
	endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s",
		url.PathEscape(ref.Owner), url.PathEscape(ref.Name))

	body, err := c.get(ctx, endpoint, func(req *http.Request) {
		req.Header.Set("Accept", "application/vnd.github+json")
		if c.githubToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.githubToken)
		}
	})
	if err != nil {
		return nil, err
	}

	var raw githubRepo
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}

	return &model.Repository{
		ID:          raw.ID,
		Platform:    model.PlatformGitHub,
		Owner:       raw.Owner.Login,
		Name:        raw.Name,
		FullName:    raw.FullName,
		Description: raw.Description,
		URL:         raw.HTMLURL,
		Stars:       raw.Stars,
		Language:    raw.Language,
	}, nil
}

type gitlabProject struct {
	ID                int64  `json:"id"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	WebURL            string `json:"web_url"`
	Stars             int    `json:"star_count"`
	Namespace         struct {
		Path string `json:"path"`
	} `json:"namespace"`
}

func (c *Client) fetchGitLab(ctx context.Context, ref model.RepoRef) (*model.Repository, error) {
	endpoint := "https://gitlab.com/api/v4/projects/" +
		url.PathEscape(ref.Owner+"/"+ref.Name)

	body, err := c.get(ctx, endpoint, func(req *http.Request) {
		if c.gitlabToken != "" {
			req.Header.Set("PRIVATE-TOKEN", c.gitlabToken)
		}
	})
	if err != nil {
		return nil, err
	}

	var raw gitlabProject
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode gitlab response: %w", err)
	}

	return &model.Repository{
		ID:          raw.ID,
		Platform:    model.PlatformGitLab,
		Owner:       raw.Namespace.Path,
		Name:        raw.Path,
		FullName:    raw.PathWithNamespace,
		Description: raw.Description,
		URL:         raw.WebURL,
		Stars:       raw.Stars,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, decorate func(*http.Request)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CuratorBot/1.0")
	decorate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
