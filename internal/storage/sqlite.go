package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"curator_bot/internal/model"
	"curator_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// CooldownWindow is the minimum gap between two publications of the same
// repository.
const CooldownWindow = 90 * 24 * time.Hour

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CanSubmit reports whether the repository may be published again. When it
// may not, the last submission time is returned so the caller can compute
// the remaining wait.
func (s *SQLite) CanSubmit(ctx context.Context, repositoryID int64) (bool, *time.Time, error) {
	var submittedStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT submitted_at FROM submissions WHERE repository_id = ?`, repositoryID,
	).Scan(&submittedStr)
	if err == sql.ErrNoRows {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("query submission: %w", err)
	}

	submittedAt, err := time.Parse(timeLayout, submittedStr)
	if err != nil {
		return false, nil, fmt.Errorf("parse submitted_at: %w", err)
	}

	allowed := time.Since(submittedAt) >= CooldownWindow
	return allowed, &submittedAt, nil
}

// RecordSubmission upserts the submission row for a repository, setting
// submitted_at to now. A single statement so concurrent writers cannot
// interleave a read-modify-write.
func (s *SQLite) RecordSubmission(ctx context.Context, repositoryID int64, fullName string, channelMessageID *int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (repository_id, repository_full_name, submitted_at, channel_message_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(repository_id) DO UPDATE SET
		   repository_full_name = excluded.repository_full_name,
		   submitted_at = excluded.submitted_at,
		   channel_message_id = excluded.channel_message_id`,
		repositoryID, fullName, now, channelMessageID,
	)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// LastPublicationTime returns the most recent submitted_at across all
// submissions, or nil if none exist.
func (s *SQLite) LastPublicationTime(ctx context.Context) (*time.Time, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(submitted_at) FROM submissions`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("query last publication: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, last.String)
	if err != nil {
		return nil, fmt.Errorf("parse last publication: %w", err)
	}
	return &t, nil
}

// LastPendingScheduledTime returns the latest scheduled_time among
// unpublished scheduled posts, or nil if none are pending.
func (s *SQLite) LastPendingScheduledTime(ctx context.Context) (*time.Time, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(scheduled_time) FROM scheduled_posts WHERE is_published = 0`,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("query last pending slot: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, last.String)
	if err != nil {
		return nil, fmt.Errorf("parse last pending slot: %w", err)
	}
	return &t, nil
}

// CreateScheduledPost inserts a scheduled post unless an unpublished one
// already exists for the repository, in which case ErrAlreadyScheduled is
// returned. The guard and the insert are one statement.
func (s *SQLite) CreateScheduledPost(ctx context.Context, post *model.ScheduledPost) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_posts
		   (repository_id, repository_full_name, post_text, banner, scheduled_time, job_id, is_published, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, 0, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM scheduled_posts WHERE repository_id = ? AND is_published = 0
		 )`,
		post.RepositoryID, post.RepositoryFullName, post.PostText, post.Banner,
		post.ScheduledTime.UTC().Format(timeLayout), post.JobID, now, post.RepositoryID,
	)
	if err != nil {
		return fmt.Errorf("insert scheduled post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyScheduled
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	post.ID = id
	post.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// HasPendingScheduledPost reports whether an unpublished scheduled post
// exists for the repository.
func (s *SQLite) HasPendingScheduledPost(ctx context.Context, repositoryID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_posts WHERE repository_id = ? AND is_published = 0`,
		repositoryID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check pending: %w", err)
	}
	return count > 0, nil
}

// ListDueScheduledPosts returns unpublished posts whose scheduled time is
// at or before now, oldest first.
func (s *SQLite) ListDueScheduledPosts(ctx context.Context, now time.Time) ([]model.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository_id, repository_full_name, post_text, banner, scheduled_time,
		        job_id, is_published, channel_message_id, created_at
		 FROM scheduled_posts
		 WHERE is_published = 0 AND scheduled_time <= ?
		 ORDER BY scheduled_time`,
		now.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query due posts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanScheduledPosts(rows)
}

// ListScheduledPosts returns all scheduled posts ordered by scheduled time.
func (s *SQLite) ListScheduledPosts(ctx context.Context) ([]model.ScheduledPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository_id, repository_full_name, post_text, banner, scheduled_time,
		        job_id, is_published, channel_message_id, created_at
		 FROM scheduled_posts
		 ORDER BY scheduled_time`,
	)
	if err != nil {
		return nil, fmt.Errorf("query scheduled posts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanScheduledPosts(rows)
}

// MarkScheduledPostPublished flips a pending post to published with the
// channel message id. Fails if the post is unknown or already published,
// so a job can never be marked twice.
func (s *SQLite) MarkScheduledPostPublished(ctx context.Context, jobID string, channelMessageID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET is_published = 1, channel_message_id = ?
		 WHERE job_id = ? AND is_published = 0`,
		channelMessageID, jobID,
	)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %q is not pending", jobID)
	}
	return nil
}

// PurgeOrphanedScheduledPosts deletes unpublished posts whose scheduled
// time is older than the given age. Returns the number of rows removed.
func (s *SQLite) PurgeOrphanedScheduledPosts(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_posts WHERE is_published = 0 AND scheduled_time < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge orphaned posts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Vacuum runs storage compaction.
func (s *SQLite) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// SaveSession persists the session blob for its (chat, user) key.
func (s *SQLite) SaveSession(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (chat_id, user_id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		sess.ChatID, sess.UserID, string(data), sess.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the session for (chat, user), or nil if none exists.
// A blob that fails to decode, or decodes without its required fields, is
// treated as an expired session and also returns nil.
func (s *SQLite) LoadSession(ctx context.Context, chatID, userID int64) (*model.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE chat_id = ? AND user_id = ?`, chatID, userID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, nil
	}
	if sess.State == "" || sess.SubmissionID == "" {
		return nil, nil
	}
	return &sess, nil
}

// DeleteSession removes the session for (chat, user).
func (s *SQLite) DeleteSession(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE chat_id = ? AND user_id = ?`, chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanScheduledPost(row scannable) (model.ScheduledPost, error) {
	var p model.ScheduledPost
	var isPublished int
	var scheduledStr, createdStr string
	var msgID sql.NullInt64
	err := row.Scan(&p.ID, &p.RepositoryID, &p.RepositoryFullName, &p.PostText, &p.Banner,
		&scheduledStr, &p.JobID, &isPublished, &msgID, &createdStr)
	if err != nil {
		return p, fmt.Errorf("scan scheduled post: %w", err)
	}
	p.IsPublished = isPublished == 1
	if msgID.Valid {
		v := msgID.Int64
		p.ChannelMessageID = &v
	}
	p.ScheduledTime, _ = time.Parse(timeLayout, scheduledStr)
	p.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return p, nil
}

func scanScheduledPosts(rows *sql.Rows) ([]model.ScheduledPost, error) {
	var posts []model.ScheduledPost
	for rows.Next() {
		p, err := scanScheduledPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
