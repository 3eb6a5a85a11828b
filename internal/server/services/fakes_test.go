package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/dbx"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/dmitrijs2005/parley/internal/server/repositories/messages"
	"github.com/dmitrijs2005/parley/internal/server/repositories/repomanager"
	usersrepo "github.com/dmitrijs2005/parley/internal/server/repositories/users"
)

// --- users ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	getErr error
}

func newFakeUsers(users ...*models.User) *fakeUsersRepo {
	f := &fakeUsersRepo{byID: map[string]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.UserName == u.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.ID = "u-" + u.UserName
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.UserName == login {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// --- messages ---

// memMessages is an in-memory messages.Repository with the same
// conditional-update semantics as the Postgres queries.
type memMessages struct {
	mu    sync.Mutex
	rows  map[string]*models.Message
	users *fakeUsersRepo

	// injected failures
	lastErr  map[string]error
	countErr error
}

func newMemMessages(users *fakeUsersRepo) *memMessages {
	return &memMessages{rows: map[string]*models.Message{}, users: users, lastErr: map[string]error{}}
}

func clone(m *models.Message) *models.Message {
	cp := *m
	if m.Encrypted != nil {
		e := *m.Encrypted
		cp.Encrypted = &e
	}
	cp.ReplyTo = nil
	return &cp
}

func between(m *models.Message, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func (r *memMessages) sorted() []*models.Message {
	out := make([]*models.Message, 0, len(r.rows))
	for _, m := range r.rows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *memMessages) Create(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.ID] = clone(m)
	return nil
}

func (r *memMessages) GetByID(ctx context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(m), nil
}

func (r *memMessages) ListBetween(ctx context.Context, viewerID, otherID string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.sorted() {
		if !between(m, viewerID, otherID) {
			continue
		}
		if (m.SenderID == viewerID && m.DeletedForSender) || (m.ReceiverID == viewerID && m.DeletedForReceiver) {
			continue
		}
		cp := clone(m)
		if m.ReplyToID != nil {
			if p, ok := r.rows[*m.ReplyToID]; ok {
				pc := clone(p)
				cp.ReplyTo = &models.ReplyPreview{
					ID: pc.ID, SenderID: pc.SenderID, ReceiverID: pc.ReceiverID,
					Content: pc.Content, Encrypted: pc.Encrypted, MediaType: pc.MediaType,
				}
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func (r *memMessages) Correspondents(ctx context.Context, viewerID string) ([]*models.User, error) {
	r.mu.Lock()
	ids := map[string]bool{}
	for _, m := range r.rows {
		switch viewerID {
		case m.SenderID:
			ids[m.ReceiverID] = true
		case m.ReceiverID:
			ids[m.SenderID] = true
		}
	}
	r.mu.Unlock()

	var out []*models.User
	for id := range ids {
		u, err := r.users.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *memMessages) LastBetween(ctx context.Context, a, b string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.lastErr[a+"|"+b]; ok {
		return nil, err
	}
	var last *models.Message
	for _, m := range r.sorted() {
		if between(m, a, b) {
			last = m
		}
	}
	if last == nil {
		return nil, common.ErrorNotFound
	}
	return clone(last), nil
}

func (r *memMessages) CountUnreadFrom(ctx context.Context, receiverID, senderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	var n int64
	for _, m := range r.rows {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (r *memMessages) UnreadCount(ctx context.Context, receiverID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.rows {
		if m.ReceiverID == receiverID && !m.Read && !m.DeletedForReceiver {
			n++
		}
	}
	return n, nil
}

func (r *memMessages) UpdateContent(ctx context.Context, id, senderID string, notBefore time.Time,
	content *string, enc *models.EncryptedPayload, now time.Time) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.SenderID != senderID || m.CreatedAt.Before(notBefore) {
		return nil, common.ErrorNotFound
	}
	m.Content = content
	m.Encrypted = enc
	m.IsEdited = true
	m.UpdatedAt = now
	return clone(m), nil
}

func (r *memMessages) MarkRead(ctx context.Context, receiverID string, ids []string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		m, ok := r.rows[id]
		if ok && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *memMessages) MarkDeletedForSender(ctx context.Context, id, senderID string, now time.Time) (*messages.SideDeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.SenderID != senderID || m.DeletedForSender {
		return &messages.SideDeleteResult{}, nil
	}
	m.DeletedForSender = true
	m.UpdatedAt = now
	return &messages.SideDeleteResult{Updated: true, OtherSideDeleted: m.DeletedForReceiver, MediaURL: m.MediaURL}, nil
}

func (r *memMessages) MarkDeletedForReceiver(ctx context.Context, id, receiverID string, now time.Time) (*messages.SideDeleteResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.ReceiverID != receiverID || m.DeletedForReceiver {
		return &messages.SideDeleteResult{}, nil
	}
	m.DeletedForReceiver = true
	m.UpdatedAt = now
	return &messages.SideDeleteResult{Updated: true, OtherSideDeleted: m.DeletedForSender, MediaURL: m.MediaURL}, nil
}

func (r *memMessages) MarkDeletedForBoth(ctx context.Context, id, senderID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok || m.SenderID != senderID || m.DeletedForBoth() {
		return false, nil
	}
	m.DeletedForSender, m.DeletedForReceiver = true, true
	m.UpdatedAt = now
	return true, nil
}

func (r *memMessages) media(a, b string, fullyDeleted bool) []*models.Message {
	var out []*models.Message
	for _, m := range r.sorted() {
		if between(m, a, b) && m.HasMedia() && m.DeletedForBoth() == fullyDeleted {
			out = append(out, &models.Message{ID: m.ID, MediaURL: m.MediaURL})
		}
	}
	return out
}

func (r *memMessages) MediaCandidates(ctx context.Context, a, b string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.media(a, b, false), nil
}

func (r *memMessages) FullyDeletedMedia(ctx context.Context, a, b string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.media(a, b, true), nil
}

func (r *memMessages) HideSent(ctx context.Context, senderID, receiverID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.rows {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.DeletedForSender {
			m.DeletedForSender = true
			n++
		}
	}
	return n, nil
}

func (r *memMessages) HideReceived(ctx context.Context, receiverID, senderID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.rows {
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.DeletedForReceiver {
			m.DeletedForReceiver = true
			n++
		}
	}
	return n, nil
}

func (r *memMessages) CountMediaReferences(ctx context.Context, url string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.rows {
		if m.MediaURL != nil && *m.MediaURL == url && !m.DeletedForBoth() {
			n++
		}
	}
	return n, nil
}

// --- manager / collaborators ---

type fakeRepoManager struct {
	u usersrepo.Repository
	m messages.Repository
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return f.u }
func (f *fakeRepoManager) Messages(dbx.DBTX) messages.Repository        { return f.m }

var _ repomanager.RepositoryManager = (*fakeRepoManager)(nil)

type recordingReleaser struct {
	mu       sync.Mutex
	released []string
}

func (r *recordingReleaser) Release(ctx context.Context, url string) {
	r.mu.Lock()
	r.released = append(r.released, url)
	r.mu.Unlock()
}

func (r *recordingReleaser) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

// fixedClock is a settable time source.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
