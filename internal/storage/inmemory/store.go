package inmemory

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/storage"
)

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu            sync.RWMutex
	seq           uint
	posts         map[string]*domain.Submission
	order         []string // postID в порядке вставки
	notifications map[string][]*domain.Notification
	messages      map[domain.NotificationRef]struct{}
	requesters    map[string]*domain.Requester
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		posts:         make(map[string]*domain.Submission),
		notifications: make(map[string][]*domain.Notification),
		messages:      make(map[domain.NotificationRef]struct{}),
		requesters:    make(map[string]*domain.Requester),
	}
}

// === Post Methods ===

func (s *Store) Exists(ctx context.Context, postID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.posts[postID]
	return ok, nil
}

func (s *Store) Post(ctx context.Context, postID string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) InsertPost(ctx context.Context, postID, community string, state domain.SubmissionState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(domain.Submission{PostID: postID, Community: community, Status: state, CreatedAt: at, UpdatedAt: at})
}

func (s *Store) insertLocked(post domain.Submission) error {
	if _, ok := s.posts[post.PostID]; ok {
		return fmt.Errorf("post %s: %w", post.PostID, domain.ErrDuplicateKey)
	}
	s.seq++
	post.ID = s.seq
	if post.Status == "" {
		post.Status = domain.StateNotAssessed
	}
	s.posts[post.PostID] = &post
	s.order = append(s.order, post.PostID)
	return nil
}

// === Notification Methods ===

func (s *Store) RecordNotification(ctx context.Context, postID string, ref domain.NotificationRef, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkNotificationLocked(postID, ref); err != nil {
		return err
	}
	s.recordLocked(postID, ref, at)
	return nil
}

func (s *Store) checkNotificationLocked(postID string, ref domain.NotificationRef) error {
	if _, ok := s.posts[postID]; !ok {
		return fmt.Errorf("notification for post %s: %w", postID, domain.ErrForeignKeyViolation)
	}
	if _, ok := s.messages[ref]; ok {
		return fmt.Errorf("message %s in %s: %w", ref.MessageID, ref.ChannelID, domain.ErrDuplicateKey)
	}
	return nil
}

func (s *Store) recordLocked(postID string, ref domain.NotificationRef, at time.Time) {
	s.seq++
	s.notifications[postID] = append(s.notifications[postID], &domain.Notification{
		ID:        s.seq,
		MessageID: ref.MessageID,
		ChannelID: ref.ChannelID,
		PostID:    postID,
		CreatedAt: at,
		UpdatedAt: at,
	})
	s.messages[ref] = struct{}{}
}

// Ingest проверяет все условия до каких-либо изменений, поэтому частичной
// вставки не бывает.
func (s *Store) Ingest(ctx context.Context, post domain.Submission, refs []domain.NotificationRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[post.PostID]; ok {
		return fmt.Errorf("post %s: %w", post.PostID, domain.ErrDuplicateKey)
	}
	seen := make(map[domain.NotificationRef]struct{}, len(refs))
	for _, ref := range refs {
		_, dup := seen[ref]
		if _, ok := s.messages[ref]; ok || dup {
			return fmt.Errorf("message %s in %s: %w", ref.MessageID, ref.ChannelID, domain.ErrDuplicateKey)
		}
		seen[ref] = struct{}{}
	}

	if err := s.insertLocked(post); err != nil {
		return err
	}
	for _, ref := range refs {
		s.recordLocked(post.PostID, ref, post.CreatedAt)
	}
	return nil
}

func (s *Store) NotificationsFor(ctx context.Context, postID string) ([]domain.NotificationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.notifications[postID]
	refs := make([]domain.NotificationRef, 0, len(notes))
	for _, n := range notes {
		refs = append(refs, domain.NotificationRef{ChannelID: n.ChannelID, MessageID: n.MessageID})
	}
	return refs, nil
}

// === Recheck Methods ===

// DueForRecheck отдаёт кандидатов страницами, не удерживая блокировку между ними.
func (s *Store) DueForRecheck(ctx context.Context, w storage.Window) iter.Seq2[domain.Candidate, error] {
	return func(yield func(domain.Candidate, error) bool) {
		var after uint
		for {
			if err := ctx.Err(); err != nil {
				yield(domain.Candidate{}, err)
				return
			}
			page := s.duePage(w, after, storage.PageSize)
			for _, p := range page {
				if !yield(domain.Candidate{PostID: p.PostID, Community: p.Community}, nil) {
					return
				}
				after = p.ID
			}
			if len(page) < storage.PageSize {
				return
			}
		}
	}
}

func (s *Store) duePage(w storage.Window, after uint, limit int) []domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var page []domain.Submission
	for _, id := range s.order {
		p := s.posts[id]
		if p.ID <= after || !w.Contains(p) {
			continue
		}
		page = append(page, *p)
		if len(page) == limit {
			break
		}
	}
	return page
}

func (s *Store) CountDueForRecheck(ctx context.Context, w storage.Window) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.posts {
		if w.Contains(p) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdatePostState(ctx context.Context, postID string, state domain.SubmissionState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(postID, state, at)
}

func (s *Store) updateLocked(postID string, state domain.SubmissionState, at time.Time) error {
	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
	}
	p.Status = state
	p.UpdatedAt = at
	return nil
}

func (s *Store) TouchNotifications(ctx context.Context, postID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked(postID, at)
	return nil
}

func (s *Store) touchLocked(postID string, at time.Time) {
	for _, n := range s.notifications[postID] {
		n.UpdatedAt = at
	}
}

func (s *Store) MarkRechecked(ctx context.Context, postID string, state domain.SubmissionState, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateLocked(postID, state, at); err != nil {
		return err
	}
	s.touchLocked(postID, at)
	return nil
}

// === Requester Methods ===

func (s *Store) IncrementRequester(ctx context.Context, handle string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requesters[handle]
	if !ok {
		s.seq++
		r = &domain.Requester{ID: s.seq, UserHandle: handle}
		s.requesters[handle] = r
	}
	r.RequestCount++
	return r.RequestCount, nil
}

// === Statistics Methods ===

func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(since, nil), nil
}

func (s *Store) CountSinceWithState(ctx context.Context, since time.Time, state domain.SubmissionState) (int64, error) {
	return s.count(since, &state), nil
}

func (s *Store) count(since time.Time, state *domain.SubmissionState) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.posts {
		if p.CreatedAt.Before(since) {
			continue
		}
		if state != nil && p.Status != *state {
			continue
		}
		n++
	}
	return n
}
