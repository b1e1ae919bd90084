// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"curator_bot/internal/model"
)

// ErrAlreadyScheduled is returned when an unpublished scheduled post
// already exists for the repository.
var ErrAlreadyScheduled = errors.New("repository already has a pending scheduled post")

// Storage is the interface for all persistence operations.
type Storage interface {
	// Submissions (deduplication and spacing anchor).
	CanSubmit(ctx context.Context, repositoryID int64) (bool, *time.Time, error)
	RecordSubmission(ctx context.Context, repositoryID int64, fullName string, channelMessageID *int64) error
	LastPublicationTime(ctx context.Context) (*time.Time, error)
	LastPendingScheduledTime(ctx context.Context) (*time.Time, error)

	// Scheduled posts (durable one-shot jobs).
	CreateScheduledPost(ctx context.Context, post *model.ScheduledPost) error
	HasPendingScheduledPost(ctx context.Context, repositoryID int64) (bool, error)
	ListDueScheduledPosts(ctx context.Context, now time.Time) ([]model.ScheduledPost, error)
	ListScheduledPosts(ctx context.Context) ([]model.ScheduledPost, error)
	MarkScheduledPostPublished(ctx context.Context, jobID string, channelMessageID int64) error
	PurgeOrphanedScheduledPosts(ctx context.Context, olderThan time.Duration) (int64, error)
	Vacuum(ctx context.Context) error

	// Conversation sessions.
	SaveSession(ctx context.Context, s *model.Session) error
	LoadSession(ctx context.Context, chatID, userID int64) (*model.Session, error)
	DeleteSession(ctx context.Context, chatID, userID int64) error

	Close() error
}
