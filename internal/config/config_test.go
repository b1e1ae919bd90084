package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var allKeys = []string{
	"TELEGRAM_BOT_TOKEN", "CHANNEL_ID", "DATABASE_PATH", "LOG_LEVEL",
	"ALLOWED_USERS", "OPENAI_API_KEY", "OPENAI_BASE_URL", "SUMMARY_MODEL",
	"REVISION_MODEL", "GITHUB_TOKEN", "GITLAB_TOKEN", "PREVIEW_MAX_ENTRIES",
}

func TestLoad(t *testing.T) {
	required := map[string]string{
		"TELEGRAM_BOT_TOKEN": "tok",
		"CHANNEL_ID":         "-100500",
		"OPENAI_API_KEY":     "sk-test",
	}

	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{"CHANNEL_ID": "-100500", "OPENAI_API_KEY": "sk-test"},
			wantErr: true,
		},
		{
			name:    "missing channel",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "OPENAI_API_KEY": "sk-test"},
			wantErr: true,
		},
		{
			name: "non-numeric channel",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"CHANNEL_ID":         "@mychannel",
				"OPENAI_API_KEY":     "sk-test",
			},
			wantErr: true,
		},
		{
			name:    "missing api key",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "CHANNEL_ID": "-100500"},
			wantErr: true,
		},
		{
			name: "required only, defaults applied",
			env:  required,
			want: &Config{
				TelegramBotToken:  "tok",
				ChannelID:         -100500,
				DatabasePath:      "./data/bot.db",
				LogLevel:          "info",
				OpenAIAPIKey:      "sk-test",
				OpenAIBaseURL:     "https://api.openai.com/v1",
				SummaryModel:      "gpt-4o",
				RevisionModel:     "gpt-4o-mini",
				PreviewMaxEntries: 50,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":  "tok",
				"CHANNEL_ID":          "-100500",
				"DATABASE_PATH":       "/tmp/bot.db",
				"LOG_LEVEL":           "debug",
				"ALLOWED_USERS":       "111,222",
				"OPENAI_API_KEY":      "sk-test",
				"OPENAI_BASE_URL":     "https://llm.internal/v1",
				"SUMMARY_MODEL":       "m-large",
				"REVISION_MODEL":      "m-small",
				"GITHUB_TOKEN":        "gh",
				"GITLAB_TOKEN":        "gl",
				"PREVIEW_MAX_ENTRIES": "10",
			},
			want: &Config{
				TelegramBotToken:  "tok",
				ChannelID:         -100500,
				DatabasePath:      "/tmp/bot.db",
				LogLevel:          "debug",
				AllowedUsers:      []int64{111, 222},
				OpenAIAPIKey:      "sk-test",
				OpenAIBaseURL:     "https://llm.internal/v1",
				SummaryModel:      "m-large",
				RevisionModel:     "m-small",
				GitHubToken:       "gh",
				GitLabToken:       "gl",
				PreviewMaxEntries: 10,
			},
		},
		{
			name: "allowed users with spaces",
			env: merge(required, map[string]string{
				"ALLOWED_USERS": " 10 , 20 , ",
			}),
			want: &Config{
				TelegramBotToken:  "tok",
				ChannelID:         -100500,
				DatabasePath:      "./data/bot.db",
				LogLevel:          "info",
				AllowedUsers:      []int64{10, 20},
				OpenAIAPIKey:      "sk-test",
				OpenAIBaseURL:     "https://api.openai.com/v1",
				SummaryModel:      "gpt-4o",
				RevisionModel:     "gpt-4o-mini",
				PreviewMaxEntries: 50,
			},
		},
		{
			name:    "invalid user id",
			env:     merge(required, map[string]string{"ALLOWED_USERS": "123,abc"}),
			wantErr: true,
		},
		{
			name:    "invalid preview cap",
			env:     merge(required, map[string]string{"PREVIEW_MAX_ENTRIES": "0"}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range allKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []int64
		userID  int64
		want    bool
	}{
		{name: "empty list allows everyone", userID: 42, want: true},
		{name: "listed user", allowed: []int64{42, 43}, userID: 42, want: true},
		{name: "unlisted user", allowed: []int64{42, 43}, userID: 99, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowed}
			if got := cfg.IsUserAllowed(tt.userID); got != tt.want {
				t.Errorf("IsUserAllowed(%d) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
