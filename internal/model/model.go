// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// Platform identifies the code-hosting service a repository lives on.
type Platform string

// Supported hosting platforms.
const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// RepoRef is a parsed reference to a repository on a hosting platform.
type RepoRef struct {
	Platform Platform `json:"platform"`
	Owner    string   `json:"owner"`
	Name     string   `json:"name"`
}

// FullName returns the "owner/name" form of the reference.
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// Repository holds the metadata fetched for a repository.
type Repository struct {
	ID          int64
	Platform    Platform
	Owner       string
	Name        string
	FullName    string
	Description string
	URL         string
	Stars       int
	Language    string
}

// Summary is the AI-generated promotional content for a repository.
type Summary struct {
	ProjectName string   `json:"project_name"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	Tags        []string `json:"tags"`
	Links       []string `json:"links"`
}

// Submission records a repository that has been published to the channel.
// At most one row exists per repository; re-publishing updates it.
type Submission struct {
	RepositoryID       int64
	RepositoryFullName string
	SubmittedAt        time.Time
	ChannelMessageID   *int64
}

// ScheduledPost is a persisted one-shot publication job.
type ScheduledPost struct {
	ID                 int64
	RepositoryID       int64
	RepositoryFullName string
	PostText           string
	Banner             []byte
	ScheduledTime      time.Time
	JobID              string
	IsPublished        bool
	ChannelMessageID   *int64
	CreatedAt          time.Time
}

// SessionState is the current step of a submission conversation.
type SessionState string

// Conversation states. Terminal outcomes (published, cancelled, expired)
// have no state of their own: the session row is deleted instead.
const (
	StateWaitingURL          SessionState = "waiting_url"
	StateWaitingConfirmation SessionState = "waiting_confirmation"
	StatePreviewing          SessionState = "previewing"
	StateEditingField        SessionState = "editing_field"
	StateAwaitingRevision    SessionState = "awaiting_revision"
)

// EditField names a single editable field of the summary.
type EditField string

// Editable summary fields.
const (
	FieldDescription EditField = "description"
	FieldFeatures    EditField = "features"
	FieldTags        EditField = "tags"
	FieldLinks       EditField = "links"
)

// ParseEditField validates a field name received from a callback payload.
func ParseEditField(s string) (EditField, error) {
	switch EditField(s) {
	case FieldDescription, FieldFeatures, FieldTags, FieldLinks:
		return EditField(s), nil
	}
	return "", fmt.Errorf("unknown edit field %q", s)
}

// MessageRef identifies an ephemeral message the flow has emitted, so it
// can be deleted on any terminal or superseding transition.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Session is the persisted state of one submission conversation, keyed by
// (chat, user). It is stored as a JSON blob and must stay self-contained:
// a blob that no longer decodes is treated as an expired session.
type Session struct {
	ChatID       int64        `json:"chat_id"`
	UserID       int64        `json:"user_id"`
	State        SessionState `json:"state"`
	SubmissionID string       `json:"submission_id"`

	RepositoryURL string    `json:"repository_url"`
	Ref           RepoRef   `json:"ref"`
	RepositoryID  int64     `json:"repository_id,omitempty"`
	FullName      string    `json:"full_name,omitempty"`
	Summary       *Summary  `json:"summary,omitempty"`
	Caption       string    `json:"caption,omitempty"`
	Banner        []byte    `json:"banner,omitempty"`
	EditField     EditField `json:"edit_field,omitempty"`

	// Preview is tracked separately from the other ephemeral messages:
	// it is the message whose inline keyboard drives the flow.
	PreviewChatID    int64 `json:"preview_chat_id,omitempty"`
	PreviewMessageID int   `json:"preview_message_id,omitempty"`

	Tracked   []MessageRef `json:"tracked,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Track remembers an ephemeral message for later cleanup.
func (s *Session) Track(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	for _, m := range s.Tracked {
		if m.ChatID == chatID && m.MessageID == messageID {
			return
		}
	}
	s.Tracked = append(s.Tracked, MessageRef{ChatID: chatID, MessageID: messageID})
}

// CleanupTargets returns every ephemeral message, preview included.
func (s *Session) CleanupTargets() []MessageRef {
	targets := make([]MessageRef, 0, len(s.Tracked)+1)
	targets = append(targets, s.Tracked...)
	if s.PreviewMessageID != 0 {
		targets = append(targets, MessageRef{ChatID: s.PreviewChatID, MessageID: s.PreviewMessageID})
	}
	return targets
}
