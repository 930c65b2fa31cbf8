package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxThreadTitleLength = 128
	MaxPostLength        = 4000
	// MaxPostsPerPage bounds one GET_THREAD reply well under the frame cap
	// for ordinary text.
	MaxPostsPerPage = 10
)

var ErrThreadTitle = errors.New("thread title must be 1-128 characters")
var ErrPostBody = errors.New("post body must be 1-4000 characters")

// Thread is a forum topic.
type Thread struct {
	ID         int64     `json:"id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Replies    int       `json:"replies"`
	CreatedAt  time.Time `json:"created_at"`
	Posts      []Post    `json:"posts,omitempty"`
}

// Post is a reply inside a thread.
type Post struct {
	ID         int64     `json:"id"`
	ThreadID   int64     `json:"thread_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidateThread checks a new thread's title and opening body.
func ValidateThread(title, body string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(title)); n == 0 || n > MaxThreadTitleLength {
		return ErrThreadTitle
	}
	return ValidatePost(body)
}

// ValidatePost checks a reply body.
func ValidatePost(body string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(body)); n == 0 || n > MaxPostLength {
		return ErrPostBody
	}
	return nil
}
