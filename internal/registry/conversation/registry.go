// Package conversation holds the client-side list of conversations shown in
// the agent desk.
package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chat-app-client/internal/apiclient"
	"chat-app-client/internal/dto"
	"chat-app-client/internal/events"
	"chat-app-client/internal/logging"
	"chat-app-client/internal/model"
)

const DefaultPageSize = 20

// ErrSuperseded is returned by a Fetch whose result was dropped because a
// newer Fetch started while it was in flight.
var ErrSuperseded = errors.New("conversation: fetch superseded")

// Lister fetches one page of conversations. *apiclient.Client satisfies it.
type Lister interface {
	ListConversations(ctx context.Context, q apiclient.ConversationQuery) (dto.Page[model.Conversation], error)
}

type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeAdded    ChangeKind = "added"
	ChangeUpdated  ChangeKind = "updated"
	ChangeFailed   ChangeKind = "failed"
)

// Change is published after every mutation. UUID is set for single-entry changes.
type Change struct {
	Kind ChangeKind
	UUID string
}

type Options struct {
	PageSize int
	// Status restricts the listing; empty lists every conversation.
	Status model.ConversationStatus
	Logger *zap.Logger
}

type Registry struct {
	src      Lister
	pageSize int
	status   model.ConversationStatus
	log      *zap.Logger
	changes  *events.Bus[Change]

	mu       sync.RWMutex
	items    []model.Conversation
	loading  bool
	errMsg   string
	fetchSeq uint64

	version atomic.Uint64
	signal  chan struct{}
}

func New(src Lister, opts Options) *Registry {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	log := logging.OrComponent(opts.Logger, "conversation-registry")
	return &Registry{
		src:      src,
		pageSize: opts.PageSize,
		status:   opts.Status,
		log:      log,
		changes:  events.NewBus[Change]("conversation-change", log),
		signal:   make(chan struct{}, 1),
	}
}

// Subscribe registers a change listener and returns its unsubscribe function.
func (r *Registry) Subscribe(h events.Handler[Change]) func() {
	return r.changes.Subscribe(h)
}

// Fetch replaces the whole list with page 1 of the listing. On failure the
// current list is kept and the error is recorded. A result that lands after a
// newer Fetch started is dropped and ErrSuperseded is returned.
func (r *Registry) Fetch(ctx context.Context) error {
	r.mu.Lock()
	r.fetchSeq++
	seq := r.fetchSeq
	r.loading = true
	r.mu.Unlock()

	page, err := r.src.ListConversations(ctx, apiclient.ConversationQuery{
		Page:     1,
		PageSize: r.pageSize,
		Status:   r.status,
	})

	r.mu.Lock()
	if seq != r.fetchSeq {
		r.mu.Unlock()
		r.log.Debug("discarding superseded conversation page")
		return ErrSuperseded
	}
	r.loading = false
	if err != nil {
		r.errMsg = err.Error()
		r.mu.Unlock()
		r.log.Warn("fetch conversations failed", zap.Error(err))
		r.changes.Publish(Change{Kind: ChangeFailed})
		return err
	}
	r.errMsg = ""
	r.items = append([]model.Conversation(nil), page.Items...)
	r.mu.Unlock()

	r.changes.Publish(Change{Kind: ChangeReplaced})
	return nil
}

// TriggerRefresh bumps the refresh version and signals Run. Triggers raised
// before Run consumes the signal collapse into a single fetch.
func (r *Registry) TriggerRefresh() {
	r.version.Add(1)
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Version is the number of refreshes requested so far.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}

// Run performs a fetch for every consumed refresh signal until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.signal:
			_ = r.Fetch(ctx)
		}
	}
}

// Add prepends c. Entries are not de-duplicated.
func (r *Registry) Add(c model.Conversation) {
	r.mu.Lock()
	r.items = append([]model.Conversation{c}, r.items...)
	r.mu.Unlock()
	r.changes.Publish(Change{Kind: ChangeAdded, UUID: c.UUID})
}

// UpdateLastMessage patches the summary of the entry with the given uuid.
// It reports whether an entry matched.
func (r *Registry) UpdateLastMessage(uuid, text string, at time.Time) bool {
	r.mu.Lock()
	found := false
	for i := range r.items {
		if r.items[i].UUID == uuid {
			r.items[i].LastMessage = text
			r.items[i].LastMessageAt = at
			found = true
			break
		}
	}
	r.mu.Unlock()

	if found {
		r.changes.Publish(Change{Kind: ChangeUpdated, UUID: uuid})
	}
	return found
}

// Filter returns the entries with the given status, in list order.
func (r *Registry) Filter(status model.ConversationStatus) []model.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Conversation, 0, len(r.items))
	for _, c := range r.items {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Snapshot() []model.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Conversation(nil), r.items...)
}

func (r *Registry) Get(uuid string) (model.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.items {
		if c.UUID == uuid {
			return c, true
		}
	}
	return model.Conversation{}, false
}

func (r *Registry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Err returns the last fetch error, or "".
func (r *Registry) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errMsg
}
