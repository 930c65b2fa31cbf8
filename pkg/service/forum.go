package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/model"
)

type ForumService struct {
	db datastore.DataProviderFactory
}

func NewForumService(db datastore.DataProviderFactory) *ForumService {
	return &ForumService{db: db}
}

var _ Forum = (*ForumService)(nil)

func (s *ForumService) Threads(ctx context.Context, offset, limit int) ([]model.Thread, error) {
	return s.db.NonTx().ListThreads(ctx, offset, limit)
}

// Thread returns a thread with one page of its posts.
func (s *ForumService) Thread(ctx context.Context, id int64, offset, limit int) (*model.Thread, error) {
	ds := s.db.NonTx()
	t, err := ds.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fail(ErrNotFound, "thread %d not found", id)
	}
	if t.Posts, err = ds.ListPosts(ctx, id, offset, limit); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ForumService) CreateThread(ctx context.Context, authorID int64, title, body string) (*model.Thread, error) {
	if err := model.ValidateThread(title, body); err != nil {
		return nil, invalid(err)
	}
	t := &model.Thread{AuthorID: authorID, Title: strings.TrimSpace(title), Body: body}
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		if err := tx.CreateThread(ctx, t); err != nil {
			return err
		}
		created, err := tx.GetThread(ctx, t.ID)
		if err != nil {
			return err
		}
		t = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ForumService) Reply(ctx context.Context, authorID, threadID int64, body string) (*model.Post, error) {
	if err := model.ValidatePost(body); err != nil {
		return nil, invalid(err)
	}
	p := &model.Post{ThreadID: threadID, AuthorID: authorID, Body: body}
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		t, err := tx.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		if t == nil {
			return fail(ErrNotFound, "thread %d not found", threadID)
		}
		if err := tx.CreatePost(ctx, p); err != nil {
			return err
		}
		author, err := tx.GetUserByID(ctx, authorID)
		if err != nil {
			return err
		}
		if author != nil {
			p.AuthorName = author.DisplayName
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ForumService) DeleteThread(ctx context.Context, actor Actor, threadID int64) error {
	err := withTx(ctx, s.db, func(tx datastore.DataStore) error {
		t, err := tx.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		if t == nil {
			return datastore.ErrNotFound
		}
		if t.AuthorID != actor.UserID && !actor.IsAdmin() {
			return fail(ErrForbidden, "only the author or an administrator may delete thread %d", threadID)
		}
		return tx.DeleteThread(ctx, threadID)
	})
	return translate(err, fmt.Sprintf("thread %d", threadID))
}
