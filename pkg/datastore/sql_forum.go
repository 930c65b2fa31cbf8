package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/NicolasHaas/campus/pkg/model"
)

const threadQuery = `SELECT t.id, t.author_id, u.display_name, t.title, t.body,
	(SELECT COUNT(*) FROM posts p WHERE p.thread_id = t.id), t.created_at
	FROM threads t JOIN users u ON u.id = t.author_id`

func scanThread(row rowScanner) (*model.Thread, error) {
	t := &model.Thread{}
	var createdAt string
	if err := row.Scan(&t.ID, &t.AuthorID, &t.AuthorName, &t.Title, &t.Body, &t.Replies, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parsed
	return t, nil
}

func (s *baseProvider) CreateThread(ctx context.Context, thread *model.Thread) error {
	res, err := s.ExecContext(ctx, "INSERT INTO threads (author_id, title, body) VALUES (?, ?, ?)",
		thread.AuthorID, thread.Title, thread.Body)
	if err != nil {
		return fmt.Errorf("datastore: create thread: %w", err)
	}
	thread.ID, _ = res.LastInsertId()
	thread.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

// GetThread retrieves a thread without its posts. Returns (nil, nil) if not found.
func (s *baseProvider) GetThread(ctx context.Context, id int64) (*model.Thread, error) {
	t, err := scanThread(s.QueryRowContext(ctx, threadQuery+" WHERE t.id = ?", id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get thread: %w", err)
	}
	return t, nil
}

// ListPosts returns a page of a thread's posts, oldest first. The limit is
// clamped to model.MaxPostsPerPage.
func (s *baseProvider) ListPosts(ctx context.Context, threadID int64, offset, limit int) ([]model.Post, error) {
	if limit <= 0 || limit > model.MaxPostsPerPage {
		limit = model.MaxPostsPerPage
	}
	rows, err := s.QueryContext(ctx, `SELECT p.id, p.thread_id, p.author_id, u.display_name, p.body, p.created_at
		FROM posts p JOIN users u ON u.id = p.author_id WHERE p.thread_id = ? ORDER BY p.id LIMIT ? OFFSET ?`,
		threadID, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("datastore: list posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		var createdAt string
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.AuthorID, &p.AuthorName, &p.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan post: %w", err)
		}
		if p.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListThreads returns a page of threads, newest first, without posts.
func (s *baseProvider) ListThreads(ctx context.Context, offset, limit int) ([]model.Thread, error) {
	rows, err := s.QueryContext(ctx, threadQuery+" ORDER BY t.id DESC LIMIT ? OFFSET ?", clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("datastore: list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var threads []model.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan thread: %w", err)
		}
		threads = append(threads, *t)
	}
	return threads, rows.Err()
}

func (s *baseProvider) CreatePost(ctx context.Context, post *model.Post) error {
	res, err := s.ExecContext(ctx, "INSERT INTO posts (thread_id, author_id, body) VALUES (?, ?, ?)",
		post.ThreadID, post.AuthorID, post.Body)
	if err != nil {
		return fmt.Errorf("datastore: create post: %w", err)
	}
	post.ID, _ = res.LastInsertId()
	post.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

func (s *baseProvider) DeleteThread(ctx context.Context, id int64) error {
	res, err := s.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("datastore: delete thread: %w", err)
	}
	return requireAffected(res, "delete thread")
}
