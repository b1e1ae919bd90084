// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	ChannelID        int64
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	OpenAIAPIKey  string
	OpenAIBaseURL string
	SummaryModel  string
	RevisionModel string

	GitHubToken string
	GitLabToken string

	PreviewMaxEntries int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	channelRaw := os.Getenv("CHANNEL_ID")
	if channelRaw == "" {
		return nil, fmt.Errorf("CHANNEL_ID is required")
	}
	channelID, err := strconv.ParseInt(channelRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHANNEL_ID %q: %w", channelRaw, err)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	summaryModel := os.Getenv("SUMMARY_MODEL")
	if summaryModel == "" {
		summaryModel = "gpt-4o"
	}

	revisionModel := os.Getenv("REVISION_MODEL")
	if revisionModel == "" {
		revisionModel = "gpt-4o-mini"
	}

	previewMax := 50
	if raw := os.Getenv("PREVIEW_MAX_ENTRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid PREVIEW_MAX_ENTRIES %q", raw)
		}
		previewMax = n
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		TelegramBotToken:  token,
		ChannelID:         channelID,
		DatabasePath:      dbPath,
		LogLevel:          logLevel,
		AllowedUsers:      allowedUsers,
		OpenAIAPIKey:      apiKey,
		OpenAIBaseURL:     baseURL,
		SummaryModel:      summaryModel,
		RevisionModel:     revisionModel,
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		GitLabToken:       os.Getenv("GITLAB_TOKEN"),
		PreviewMaxEntries: previewMax,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
