package repository

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relay/internal/domain"
	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

// ConversationMatch is the result of resolving a discussion message against
// every conversation log. Candidates counts how many entries share the id;
// Entry is the one appended first.
type ConversationMatch struct {
	UserID     int64
	Entry      domain.ConversationEntry
	Candidates int
}

// ConversationRepository keeps the ordered per-user conversation logs.
type ConversationRepository interface {
	// Append stores entry at the end of the user's log and assigns its Seq.
	Append(ctx context.Context, userID int64, entry *domain.ConversationEntry) error
	ListFor(ctx context.Context, userID int64) ([]domain.ConversationEntry, error)
	Delete(ctx context.Context, userID int64) error
	FindByDiscussionMessageID(ctx context.Context, messageID int) (*ConversationMatch, error)
	// UpdateLastEntryDiscussionID records the mirror id on the user's most
	// recent entry. It fails with NotFound when the log is empty.
	UpdateLastEntryDiscussionID(ctx context.Context, userID int64, messageID int) error
}

type entryRef struct {
	userID int64
	seq    int64
}

type fileConversationRepository struct {
	mu           sync.RWMutex
	path         string
	logger       *zap.Logger
	logs         map[int64][]domain.ConversationEntry
	nextSeq      int64
	byDiscussion map[int][]entryRef
}

// NewFileConversationRepository loads the conversation snapshot at path. An
// empty path keeps logs in memory only.
func NewFileConversationRepository(path string, logger *zap.Logger) ConversationRepository {
	r := &fileConversationRepository{
		path:         path,
		logger:       logger,
		logs:         loadSnapshot[[]domain.ConversationEntry](path, "conversations", logger),
		nextSeq:      1,
		byDiscussion: make(map[int][]entryRef),
	}
	r.rebuild()
	return r
}

// rebuild derives the sequence counter and the discussion index. Entries
// written without a sequence number get one in user id order.
func (r *fileConversationRepository) rebuild() {
	userIDs := make([]int64, 0, len(r.logs))
	for userID, log := range r.logs {
		userIDs = append(userIDs, userID)
		for _, e := range log {
			if e.Seq >= r.nextSeq {
				r.nextSeq = e.Seq + 1
			}
		}
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, userID := range userIDs {
		log := r.logs[userID]
		for i := range log {
			if log[i].Seq == 0 {
				log[i].Seq = r.nextSeq
				r.nextSeq++
			}
			r.addRef(log[i].DiscussionMessageID, entryRef{userID: userID, seq: log[i].Seq})
		}
	}
}

func (r *fileConversationRepository) Append(ctx context.Context, userID int64, entry *domain.ConversationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	e.Seq = r.nextSeq
	prev := r.logs[userID]
	r.logs[userID] = append(prev[:len(prev):len(prev)], e)
	r.nextSeq++
	r.addRef(e.DiscussionMessageID, entryRef{userID: userID, seq: e.Seq})

	if err := saveSnapshot(r.path, r.logs); err != nil {
		r.removeRef(e.DiscussionMessageID, entryRef{userID: userID, seq: e.Seq})
		r.nextSeq--
		if prev == nil {
			delete(r.logs, userID)
		} else {
			r.logs[userID] = prev
		}
		return apperrors.NewStorageError("conversation.append", err)
	}
	entry.Seq = e.Seq
	return nil
}

func (r *fileConversationRepository) ListFor(ctx context.Context, userID int64) ([]domain.ConversationEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.logs[userID]
	out := make([]domain.ConversationEntry, len(log))
	copy(out, log)
	return out, nil
}

func (r *fileConversationRepository) Delete(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.logs[userID]
	if !had {
		return nil
	}
	delete(r.logs, userID)
	for _, e := range prev {
		r.removeRef(e.DiscussionMessageID, entryRef{userID: userID, seq: e.Seq})
	}

	if err := saveSnapshot(r.path, r.logs); err != nil {
		r.logs[userID] = prev
		for _, e := range prev {
			r.addRef(e.DiscussionMessageID, entryRef{userID: userID, seq: e.Seq})
		}
		return apperrors.NewStorageError("conversation.delete", err)
	}
	return nil
}

func (r *fileConversationRepository) FindByDiscussionMessageID(ctx context.Context, messageID int) (*ConversationMatch, error) {
	if messageID == 0 {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := r.byDiscussion[messageID]
	if len(refs) == 0 {
		return nil, nil
	}
	first := refs[0]
	for _, e := range r.logs[first.userID] {
		if e.Seq == first.seq {
			return &ConversationMatch{UserID: first.userID, Entry: e, Candidates: len(refs)}, nil
		}
	}
	return nil, nil
}

func (r *fileConversationRepository) UpdateLastEntryDiscussionID(ctx context.Context, userID int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.logs[userID]
	if len(prev) == 0 {
		return apperrors.NewNotFound("conversation log is empty", map[string]any{"user_id": userID})
	}
	next := make([]domain.ConversationEntry, len(prev))
	copy(next, prev)
	last := &next[len(next)-1]
	oldID := last.DiscussionMessageID
	last.DiscussionMessageID = messageID

	ref := entryRef{userID: userID, seq: last.Seq}
	r.removeRef(oldID, ref)
	r.addRef(messageID, ref)
	r.logs[userID] = next

	if err := saveSnapshot(r.path, r.logs); err != nil {
		r.removeRef(messageID, ref)
		r.addRef(oldID, ref)
		r.logs[userID] = prev
		return apperrors.NewStorageError("conversation.update_discussion_id", err)
	}
	return nil
}

// addRef keeps each index bucket sorted by global sequence.
func (r *fileConversationRepository) addRef(messageID int, ref entryRef) {
	if messageID == 0 {
		return
	}
	refs := r.byDiscussion[messageID]
	i := sort.Search(len(refs), func(i int) bool { return refs[i].seq >= ref.seq })
	refs = append(refs, entryRef{})
	copy(refs[i+1:], refs[i:])
	refs[i] = ref
	r.byDiscussion[messageID] = refs
}

func (r *fileConversationRepository) removeRef(messageID int, ref entryRef) {
	if messageID == 0 {
		return
	}
	refs := r.byDiscussion[messageID]
	for i, existing := range refs {
		if existing == ref {
			refs = append(refs[:i], refs[i+1:]...)
			break
		}
	}
	if len(refs) == 0 {
		delete(r.byDiscussion, messageID)
		return
	}
	r.byDiscussion[messageID] = refs
}
