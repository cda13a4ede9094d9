// Package message holds per-conversation message history: paging, live
// appends, and optimistic sends.
package message

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/dto"
	"chat-app-client/internal/events"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
)

const DefaultPageSize = 20

// ErrFetchInFlight is returned by LoadMore while another page of the same
// conversation is still loading.
var ErrFetchInFlight = errors.New("message: fetch already in flight")

// ErrSuperseded is returned by Fetch and LoadMore when a newer Fetch of the
// same conversation started while the request was in flight. The page was
// discarded.
var ErrSuperseded = errors.New("message: fetch superseded")

// Lister fetches one page of messages. *apiclient.Client satisfies it.
type Lister interface {
	ListMessages(ctx context.Context, q apiclient.MessageQuery) (dto.Page[model.Message], error)
}

type ChangeKind string

const (
	ChangeReplaced  ChangeKind = "replaced"
	ChangePrepended ChangeKind = "prepended"
	ChangeAppended  ChangeKind = "appended"
	ChangeDelivery  ChangeKind = "delivery"
	ChangeFailed    ChangeKind = "failed"
)

type Change struct {
	Kind             ChangeKind
	ConversationUUID string
}

type Options struct {
	PageSize int
	Logger   *zap.Logger
	Now      func() time.Time
}

// thread is the state of one conversation. gen is bumped by every Fetch so a
// page that lands after a newer Fetch started is dropped.
type thread struct {
	msgs     []model.Message
	ids      map[int64]struct{}
	page     model.PageState
	gen      uint64
	inFlight bool
}

func newThread() *thread {
	return &thread{ids: make(map[int64]struct{})}
}

func (t *thread) has(id int64) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *thread) indexOfLocal(localID string) int {
	for i := range t.msgs {
		if t.msgs[i].LocalID == localID {
			return i
		}
	}
	return -1
}

type Registry struct {
	src      Lister
	pageSize int
	log      *zap.Logger
	now      func() time.Time
	changes  *events.Bus[Change]

	mu      sync.RWMutex
	threads map[string]*thread
	pending map[string]struct{}

	version atomic.Uint64
	signal  chan struct{}
}

func New(src Lister, opts Options) *Registry {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrComponent(opts.Logger, "message-registry")
	return &Registry{
		src:      src,
		pageSize: opts.PageSize,
		log:      log,
		now:      opts.Now,
		changes:  events.NewBus[Change]("message-change", log),
		threads:  make(map[string]*thread),
		pending:  make(map[string]struct{}),
		signal:   make(chan struct{}, 1),
	}
}

func (r *Registry) Subscribe(h events.Handler[Change]) func() {
	return r.changes.Subscribe(h)
}

// thread must be called with r.mu held for writing.
func (r *Registry) thread(convUUID string) *thread {
	t, ok := r.threads[convUUID]
	if !ok {
		t = newThread()
		r.threads[convUUID] = t
	}
	return t
}

// Fetch loads page 1 and replaces the stored sequence. Local messages that
// are still pending or failed are kept at the end.
func (r *Registry) Fetch(ctx context.Context, convUUID string) error {
	r.mu.Lock()
	t := r.thread(convUUID)
	t.gen++
	gen := t.gen
	prev := t.page
	t.inFlight = false
	t.page.Loading = true
	t.page.Error = ""
	r.mu.Unlock()

	page, err := r.src.ListMessages(ctx, apiclient.MessageQuery{
		ConversationUUID: convUUID,
		Page:             1,
		PageSize:         r.pageSize,
	})

	r.mu.Lock()
	if t.gen != gen || r.threads[convUUID] != t {
		r.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		t.page = prev
		t.page.Loading = false
		t.page.Error = err.Error()
		r.mu.Unlock()
		r.log.Warn("fetch messages failed", zap.String("conversation_uuid", convUUID), zap.Error(err))
		r.changes.Publish(Change{Kind: ChangeFailed, ConversationUUID: convUUID})
		return err
	}

	var local []model.Message
	for _, m := range t.msgs {
		if m.Delivery == model.DeliveryPending || m.Delivery == model.DeliveryFailed {
			local = append(local, m)
		}
	}
	t.msgs = t.msgs[:0]
	t.ids = make(map[int64]struct{}, len(page.Items)+len(local))
	for _, m := range page.Items {
		if t.has(m.ID) {
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.msgs = append(t.msgs, m)
	}
	for _, m := range local {
		if t.has(m.ID) {
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.msgs = append(t.msgs, m)
	}
	t.page = model.PageState{Page: 1, HasMore: len(page.Items) == r.pageSize}
	r.mu.Unlock()

	r.changes.Publish(Change{Kind: ChangeReplaced, ConversationUUID: convUUID})
	return nil
}

// LoadMore fetches the next older page and prepends the messages not already
// present. It returns ErrFetchInFlight while the conversation is loading,
// ErrSuperseded when a Fetch replaced the thread meanwhile, and does nothing
// once the history is exhausted.
func (r *Registry) LoadMore(ctx context.Context, convUUID string) error {
	r.mu.Lock()
	t := r.thread(convUUID)
	if t.inFlight || t.page.Loading {
		r.mu.Unlock()
		return ErrFetchInFlight
	}
	if t.page.Loaded() && !t.page.HasMore {
		r.mu.Unlock()
		return nil
	}
	gen := t.gen
	prev := t.page
	next := t.page.Page + 1
	t.inFlight = true
	t.page.Loading = true
	t.page.Error = ""
	r.mu.Unlock()

	page, err := r.src.ListMessages(ctx, apiclient.MessageQuery{
		ConversationUUID: convUUID,
		Page:             next,
		PageSize:         r.pageSize,
	})

	r.mu.Lock()
	if t.gen != gen || r.threads[convUUID] != t {
		r.mu.Unlock()
		r.log.Debug("discarding superseded page", zap.String("conversation_uuid", convUUID), zap.Int("page", next))
		return ErrSuperseded
	}
	t.inFlight = false
	if err != nil {
		t.page = prev
		t.page.Error = err.Error()
		r.mu.Unlock()
		r.log.Warn("load more messages failed",
			zap.String("conversation_uuid", convUUID),
			zap.Int("page", next),
			zap.Error(err),
		)
		r.changes.Publish(Change{Kind: ChangeFailed, ConversationUUID: convUUID})
		return err
	}

	older := make([]model.Message, 0, len(page.Items))
	for _, m := range page.Items {
		if t.has(m.ID) {
			continue
		}
		t.ids[m.ID] = struct{}{}
		older = append(older, m)
	}
	t.msgs = append(older, t.msgs...)
	t.page = model.PageState{Page: next, HasMore: len(page.Items) == r.pageSize}
	r.mu.Unlock()

	r.changes.Publish(Change{Kind: ChangePrepended, ConversationUUID: convUUID})
	return nil
}

// Add appends m unless a message with the same ID is already stored.
// It reports whether m was inserted.
func (r *Registry) Add(convUUID string, m model.Message) bool {
	r.mu.Lock()
	t := r.thread(convUUID)
	if t.has(m.ID) {
		r.mu.Unlock()
		return false
	}
	if m.ConversationUUID == "" {
		m.ConversationUUID = convUUID
	}
	if m.Delivery == "" {
		m.Delivery = model.DeliverySent
	}
	t.ids[m.ID] = struct{}{}
	t.msgs = append(t.msgs, m)
	r.mu.Unlock()

	r.changes.Publish(Change{Kind: ChangeAppended, ConversationUUID: convUUID})
	return true
}

// AddPending appends an optimistic message with a temporary ID derived from
// the clock. The returned message carries the LocalID used by Confirm and
// MarkFailed.
func (r *Registry) AddPending(convUUID, content string, sender model.SenderRole) model.Message {
	now := r.now()

	r.mu.Lock()
	t := r.thread(convUUID)
	id := now.UnixMilli()
	for t.has(id) {
		id++
	}
	m := model.Message{
		ID:               id,
		ConversationUUID: convUUID,
		Content:          content,
		Sender:           sender,
		ContentType:      model.ContentText,
		CreatedAt:        now,
		UpdatedAt:        now,
		LocalID:          uuid.NewString(),
		Delivery:         model.DeliveryPending,
	}
	t.ids[id] = struct{}{}
	t.msgs = append(t.msgs, m)
	r.mu.Unlock()

	r.changes.Publish(Change{Kind: ChangeAppended, ConversationUUID: convUUID})
	return m
}

// Confirm replaces the pending entry in place with the server's copy. If the
// server copy already arrived over the socket, the pending entry is dropped.
func (r *Registry) Confirm(convUUID, localID string, server model.Message) bool {
	r.mu.Lock()
	t, ok := r.threads[convUUID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	i := t.indexOfLocal(localID)
	if i < 0 {
		r.mu.Unlock()
		return false
	}

	tempID := t.msgs[i].ID
	delete(t.ids, tempID)
	if server.ID != tempID && t.has(server.ID) {
		t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
	} else {
		if server.ConversationUUID == "" {
			server.ConversationUUID = convUUID
		}
		server.LocalID = localID
		server.Delivery = model.DeliverySent
		server.DeliveryError = ""
		t.msgs[i] = server
		t.ids[server.ID] = struct{}{}
	}
	r.mu.Unlock()

	r.changes.Publish(Change{Kind: ChangeDelivery, ConversationUUID: convUUID})
	return true
}

// MarkFailed keeps the pending entry and flags it as failed.
func (r *Registry) MarkFailed(convUUID, localID string, cause error) bool {
	r.mu.Lock()
	t, ok := r.threads[convUUID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	i := t.indexOfLocal(localID)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	t.msgs[i].Delivery = model.DeliveryFailed
	if cause != nil {
		t.msgs[i].DeliveryError = cause.Error()
	}
	r.mu.Unlock()

	r.log.Warn("message delivery failed", zap.String("conversation_uuid", convUUID), zap.String("local_id", localID), zap.Error(cause))
	r.changes.Publish(Change{Kind: ChangeDelivery, ConversationUUID: convUUID})
	return true
}

// TriggerRefresh marks convUUID for a refetch and signals Run. Repeated
// triggers before Run wakes up result in one fetch per conversation.
func (r *Registry) TriggerRefresh(convUUID string) {
	r.version.Add(1)
	r.mu.Lock()
	r.pending[convUUID] = struct{}{}
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Version is the number of refreshes requested so far.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}

// Run refetches every conversation marked by TriggerRefresh until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.signal:
			r.mu.Lock()
			batch := make([]string, 0, len(r.pending))
			for convUUID := range r.pending {
				batch = append(batch, convUUID)
			}
			r.pending = make(map[string]struct{})
			r.mu.Unlock()

			for _, convUUID := range batch {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				_ = r.Fetch(ctx, convUUID)
			}
		}
	}
}

// Messages returns a copy of the stored sequence, oldest first.
func (r *Registry) Messages(convUUID string) []model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[convUUID]
	if !ok {
		return nil
	}
	return append([]model.Message(nil), t.msgs...)
}

func (r *Registry) PageState(convUUID string) model.PageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.threads[convUUID]
	if !ok {
		return model.PageState{}
	}
	return t.page
}

// Err returns the last paging error of the conversation, or "".
func (r *Registry) Err(convUUID string) string {
	return r.PageState(convUUID).Error
}

// Forget drops all state of a conversation. In-flight fetches for it are discarded.
func (r *Registry) Forget(convUUID string) {
	r.mu.Lock()
	delete(r.threads, convUUID)
	delete(r.pending, convUUID)
	r.mu.Unlock()
}
