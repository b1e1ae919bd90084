// Package scheduler computes publication slots and fires durable scheduled
// posts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"curator_bot/internal/model"
	"curator_bot/internal/storage"
)

const (
	// SlotInterval is the rounding grid for publication times.
	SlotInterval = 15 * time.Minute

	// MinSpacing is the minimum gap between any two publications.
	MinSpacing = time.Hour

	// immediateWindow is how close a slot must be to fire right away
	// instead of persisting a scheduled post.
	immediateWindow = 60 * time.Second

	// orphanAge is how old an unfired scheduled post must be before the
	// daily housekeeping pass removes it.
	orphanAge = 3 * 24 * time.Hour
)

// ErrRecordFailed reports that a post went out to the channel but the
// submission record could not be written. The post is live, so retrying
// the publish would send it a second time.
var ErrRecordFailed = errors.New("post sent but submission not recorded")

// Publisher sends a photo with a caption to a chat and returns the
// resulting message id.
type Publisher interface {
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string) (int64, error)
}

// Outcome reports how a publish decision was carried out.
type Outcome struct {
	Published bool // true when the post went out immediately
	MessageID int64
	Slot      time.Time
	JobID     string
}

// Scheduler enforces publication spacing, persists scheduled posts, and
// runs the background fire and housekeeping loops.
type Scheduler struct {
	store     storage.Storage
	publisher Publisher
	channelID int64
	log       *slog.Logger
	tick      time.Duration
	now       func() time.Time

	// mu serializes slot computation with its commit, so two concurrent
	// publish decisions cannot both read the same last-publication time
	// and claim conflicting slots.
	mu sync.Mutex

	// hazards holds job ids that were sent to the channel but whose row
	// could not be marked published. Refiring them would double-post, so
	// the fire loop skips them until an operator reconciles.
	hazardMu sync.Mutex
	hazards  map[string]bool
}

// New creates a Scheduler publishing to the given channel.
func New(store storage.Storage, publisher Publisher, channelID int64, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		publisher: publisher,
		channelID: channelID,
		log:       log,
		tick:      1 * time.Minute,
		now:       time.Now,
		hazards:   make(map[string]bool),
	}
}

// SetTickInterval overrides the default 1-minute fire-loop interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// RoundToInterval rounds t up to the next boundary of the given interval.
// A time already on a boundary is returned unchanged, with sub-minute
// components zeroed.
func RoundToInterval(t time.Time, interval time.Duration) time.Time {
	rounded := t.Truncate(interval)
	if rounded.Before(t) {
		rounded = rounded.Add(interval)
	}
	return rounded
}

// candidate returns the earliest legal publication time at or after base,
// before grid rounding: at least MinSpacing after the last publication and
// after every pending scheduled post.
func (s *Scheduler) candidate(ctx context.Context, base time.Time) (time.Time, error) {
	last, err := s.store.LastPublicationTime(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("last publication time: %w", err)
	}
	pending, err := s.store.LastPendingScheduledTime(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("last pending slot: %w", err)
	}
	if pending != nil && (last == nil || pending.After(*last)) {
		last = pending
	}

	candidate := base.UTC()
	if last != nil {
		if earliest := last.Add(MinSpacing); earliest.After(candidate) {
			candidate = earliest
		}
	}
	return candidate, nil
}

// NextAvailableSlot returns the earliest legal publication slot at or
// after base, rounded up to the slot grid.
func (s *Scheduler) NextAvailableSlot(ctx context.Context, base time.Time) (time.Time, error) {
	c, err := s.candidate(ctx, base)
	if err != nil {
		return time.Time{}, err
	}
	return RoundToInterval(c, SlotInterval), nil
}

// Decide reports whether a publish request at the current time would fire
// immediately or be scheduled, and for which slot. The immediacy test uses
// the unrounded candidate, so an unconstrained submission publishes right
// away instead of waiting for the next grid boundary. Advisory only: the
// authoritative decision is made inside Publish under the slot lock.
func (s *Scheduler) Decide(ctx context.Context) (immediate bool, slot time.Time, err error) {
	now := s.now().UTC()
	c, err := s.candidate(ctx, now)
	if err != nil {
		return false, time.Time{}, err
	}
	if c.Sub(now) <= immediateWindow {
		return true, now, nil
	}
	return false, RoundToInterval(c, SlotInterval), nil
}

// Publish carries out a publish decision for a repository: it computes the
// next slot and either sends the post to the channel right away or
// persists a scheduled post for the fire loop. Slot computation and commit
// happen under one lock. Returns storage.ErrAlreadyScheduled when an
// unpublished scheduled post already exists for the repository.
func (s *Scheduler) Publish(ctx context.Context, repositoryID int64, fullName, postText string, banner []byte) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	c, err := s.candidate(ctx, now)
	if err != nil {
		return Outcome{}, err
	}

	if c.Sub(now) <= immediateWindow {
		messageID, err := s.publisher.SendPhoto(ctx, s.channelID, banner, postText)
		if err != nil {
			return Outcome{}, fmt.Errorf("publish to channel: %w", err)
		}
		if err := s.store.RecordSubmission(ctx, repositoryID, fullName, &messageID); err != nil {
			s.log.Error("reconciliation hazard: post sent but submission not recorded",
				"repo_id", repositoryID, "message_id", messageID, "error", err)
			return Outcome{}, fmt.Errorf("%w: %v", ErrRecordFailed, err)
		}
		s.log.Info("published immediately", "repo", fullName, "message_id", messageID)
		return Outcome{Published: true, MessageID: messageID, Slot: now}, nil
	}

	slot := RoundToInterval(c, SlotInterval)
	post := &model.ScheduledPost{
		RepositoryID:       repositoryID,
		RepositoryFullName: fullName,
		PostText:           postText,
		Banner:             banner,
		ScheduledTime:      slot,
		JobID:              fmt.Sprintf("post_%d_%d", repositoryID, slot.Unix()),
	}
	if err := s.store.CreateScheduledPost(ctx, post); err != nil {
		return Outcome{}, err
	}

	s.log.Info("scheduled post", "repo", fullName, "slot", slot, "job_id", post.JobID)
	return Outcome{Slot: slot, JobID: post.JobID}, nil
}

// Run starts the fire loop and housekeeping, blocking until ctx is
// cancelled. The first pass runs immediately, so posts that came due while
// the process was down fire on startup.
func (s *Scheduler) Run(ctx context.Context) {
	s.fireDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()
	maintenance := time.NewTicker(7 * 24 * time.Hour)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		case <-cleanup.C:
			s.purgeOrphans(ctx)
		case <-maintenance.C:
			if err := s.store.Vacuum(ctx); err != nil {
				s.log.Error("storage maintenance", "error", err)
			}
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	due, err := s.store.ListDueScheduledPosts(ctx, s.now())
	if err != nil {
		s.log.Error("list due posts", "error", err)
		return
	}

	for _, post := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, post)
	}
}

// fire publishes one due post and marks it published. A send failure
// leaves the row untouched for the next tick; a mark failure after a
// successful send is a reconciliation hazard and blocks refiring.
func (s *Scheduler) fire(ctx context.Context, post model.ScheduledPost) {
	s.hazardMu.Lock()
	skip := s.hazards[post.JobID]
	s.hazardMu.Unlock()
	if skip {
		return
	}

	messageID, err := s.publisher.SendPhoto(ctx, s.channelID, post.Banner, post.PostText)
	if err != nil {
		s.log.Error("publish scheduled post", "job_id", post.JobID, "repo", post.RepositoryFullName, "error", err)
		return
	}

	if err := s.store.MarkScheduledPostPublished(ctx, post.JobID, messageID); err != nil {
		s.hazardMu.Lock()
		s.hazards[post.JobID] = true
		s.hazardMu.Unlock()
		s.log.Error("reconciliation hazard: post sent but not marked published",
			"job_id", post.JobID, "repo", post.RepositoryFullName,
			"message_id", messageID, "error", err)
		return
	}

	if err := s.store.RecordSubmission(ctx, post.RepositoryID, post.RepositoryFullName, &messageID); err != nil {
		s.log.Error("record fired submission", "job_id", post.JobID, "error", err)
	}

	s.log.Info("fired scheduled post", "job_id", post.JobID, "repo", post.RepositoryFullName, "message_id", messageID)
}

func (s *Scheduler) purgeOrphans(ctx context.Context) {
	n, err := s.store.PurgeOrphanedScheduledPosts(ctx, orphanAge)
	if err != nil {
		s.log.Error("purge orphaned posts", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("purged orphaned scheduled posts", "count", n)
	}
}
