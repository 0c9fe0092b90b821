// Package sync implements the background reconciliation engine between
// the local encrypted store and the remote chat API. Chats and profile
// data are reconciled by independent periodic cycles; a cycle that is
// still running when its next tick fires is skipped, never queued.
//
// Cycle failures are logged and retried on later ticks; they are never
// propagated to the caller of Start. Event flow is one-directional: the
// engine publishes to the bus, subscribers never call back in.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/authtoken"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/models"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/remote"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/client/store"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/common"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/eventbus"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/reverseid"
)

// transientRetries bounds in-cycle retries of network failures; anything
// still failing is left for the next cycle.
const transientRetries = 2

// RemoteAPI is the slice of the remote client the engine depends on.
type RemoteAPI interface {
	ListChats(ctx context.Context, token string, limit int, continuationToken string) (*remote.ListResult, error)
	PutChat(ctx context.Context, token string, chat remote.Chat) (*remote.PutResult, error)
	DeleteChat(ctx context.Context, token string, id string) error
	GetProfile(ctx context.Context, token string) (*remote.Profile, error)
	PutProfile(ctx context.Context, token string, profile remote.Profile) (*remote.ProfilePutResult, error)
}

// Options carries the engine's tunables. Zero fields fall back to the
// defaults below.
type Options struct {
	ChatInterval    time.Duration
	ProfileInterval time.Duration
	RetryDelay      time.Duration
	DeletionGrace   time.Duration
	DeletionTTL     time.Duration
	ChatsPerPage    int
}

func (o Options) withDefaults() Options {
	if o.ChatInterval <= 0 {
		o.ChatInterval = 30 * time.Second
	}
	if o.ProfileInterval <= 0 {
		o.ProfileInterval = 5 * time.Minute
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.DeletionGrace <= 0 {
		o.DeletionGrace = 15 * time.Minute
	}
	if o.DeletionTTL <= 0 {
		o.DeletionTTL = 24 * time.Hour
	}
	if o.ChatsPerPage <= 0 {
		o.ChatsPerPage = 50
	}
	return o
}

// Engine owns the periodic push/pull cycles.
type Engine struct {
	store  *store.Store
	remote RemoteAPI
	tokens *authtoken.Supplier
	bus    *eventbus.Bus
	logger logging.Logger
	opts   Options
	ids    *reverseid.Generator
	now    func() time.Time

	chatBusy    atomic.Bool
	profileBusy atomic.Bool
	wg          sync.WaitGroup
}

// New returns an Engine wired to the given store, remote API, token
// supplier and event bus.
func New(s *store.Store, r RemoteAPI, tokens *authtoken.Supplier, bus *eventbus.Bus, logger logging.Logger, opts Options) *Engine {
	return &Engine{
		store:  s,
		remote: r,
		tokens: tokens,
		bus:    bus,
		logger: logger,
		opts:   opts.withDefaults(),
		ids:    reverseid.New(),
		now:    time.Now,
	}
}

// Start launches the chat and profile tickers. Both run an immediate
// first cycle and stop when ctx is cancelled; Wait blocks until they do.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)
	go e.loop(ctx, "chat", e.opts.ChatInterval, &e.chatBusy, e.RunChatCycle)
	go e.loop(ctx, "profile", e.opts.ProfileInterval, &e.profileBusy, e.RunProfileCycle)
}

// Wait blocks until both tickers have stopped.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) loop(ctx context.Context, kind string, interval time.Duration, busy *atomic.Bool, run func(context.Context) error) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick(ctx, kind, busy, run)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, kind, busy, run)
		}
	}
}

// tick runs one cycle unless the previous one of the same kind is still
// in flight, in which case the tick is dropped.
func (e *Engine) tick(ctx context.Context, kind string, busy *atomic.Bool, run func(context.Context) error) {
	if !busy.CompareAndSwap(false, true) {
		e.logger.Debug(ctx, "sync cycle still running, tick skipped", "kind", kind)
		return
	}
	defer busy.Store(false)

	if err := run(ctx); err != nil {
		e.logger.Warn(ctx, "sync cycle failed", "kind", kind, "error", err.Error())
	}
}

// RunChatCycle performs one full chat reconciliation: pending remote
// deletions, push of locally modified chats, then a paginated pull.
// Signed-out sessions are local-only and skip the network entirely.
func (e *Engine) RunChatCycle(ctx context.Context) error {
	if !e.tokens.SignedIn() {
		return nil
	}

	e.retryPendingDeletes(ctx)

	if err := e.pushChats(ctx); err != nil {
		return err
	}
	if err := e.pullChats(ctx); err != nil {
		return err
	}
	return e.updateStatus(ctx, models.ScopeChats)
}

// withTransientRetry retries op on network failures with a constant
// delay, a bounded number of times. Anything else fails immediately.
func (e *Engine) withTransientRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(transientRetries, retry.NewConstant(e.opts.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, common.ErrNetworkFailure) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// pushChats uploads every locally modified chat. A failed upload leaves
// the row modified so the next cycle picks it up again; one bad row does
// not block the rest.
func (e *Engine) pushChats(ctx context.Context) error {
	rows, err := e.store.Chats().ListLocallyModified(ctx)
	if err != nil {
		return fmt.Errorf("listing modified chats: %w", err)
	}

	for _, row := range rows {
		if err := e.pushChat(ctx, row); err != nil {
			e.logger.Warn(ctx, "chat push failed", "chat_id", row.ID, "error", err.Error())
		}
	}
	return nil
}

func (e *Engine) pushChat(ctx context.Context, row *models.ChatRow) error {
	wire := remote.Chat{
		ID:             row.ID,
		Ciphertext:     row.Ciphertext,
		Nonce:          row.Nonce,
		CreatedAtMs:    row.CreatedAtMs,
		SyncVersion:    row.SyncVersion,
		HasTemporaryID: row.HasTemporaryID,
	}

	var res *remote.PutResult
	err := e.withTransientRetry(ctx, func(ctx context.Context) error {
		return e.tokens.WithAuthRetry(ctx, func(ctx context.Context, token string) error {
			var err error
			res, err = e.remote.PutChat(ctx, token, wire)
			return err
		})
	})
	if err != nil {
		return err
	}

	id := row.ID
	if res.ID != row.ID {
		// Server replaced a temporary ID with the canonical one.
		if err := e.store.Chats().Rename(ctx, row.ID, res.ID); err != nil {
			return fmt.Errorf("adopting server id: %w", err)
		}
		id = res.ID
		e.bus.Emit(eventbus.IDChange{From: row.ID, To: res.ID})
	}

	if err := e.store.Chats().UpdateAfterPush(ctx, id, wire.Ciphertext, e.now().UnixMilli(), res.SyncVersion); err != nil {
		return fmt.Errorf("stamping push confirmation: %w", err)
	}
	return nil
}

// pullChats walks the full remote listing and reconciles it into the
// local store. Tombstones only start or advance after a complete pass: a
// failed or partial listing proves nothing about absence.
func (e *Engine) pullChats(ctx context.Context) error {
	seen := make(map[string]struct{})
	changed := false
	continuation := ""

	for {
		var page *remote.ListResult
		err := e.withTransientRetry(ctx, func(ctx context.Context) error {
			return e.tokens.WithAuthRetry(ctx, func(ctx context.Context, token string) error {
				var err error
				page, err = e.remote.ListChats(ctx, token, e.opts.ChatsPerPage, continuation)
				return err
			})
		})
		if err != nil {
			return fmt.Errorf("pulling chats: %w", err)
		}

		for _, rc := range page.Chats {
			seen[rc.ID] = struct{}{}
			applied, err := e.applyRemoteChat(ctx, rc)
			if err != nil {
				return fmt.Errorf("applying remote chat %s: %w", rc.ID, err)
			}
			changed = changed || applied
		}

		if !page.HasMore {
			break
		}
		continuation = page.NextContinuationToken
	}

	deleted, err := e.advanceTombstones(ctx, seen)
	if err != nil {
		return err
	}

	if changed || deleted {
		e.bus.Emit(eventbus.ReloadRequired{})
	}
	return nil
}

// applyRemoteChat upserts a listed chat when it is locally absent or
// strictly newer by server version. Local pending changes are never
// overwritten by an older or equal remote version.
func (e *Engine) applyRemoteChat(ctx context.Context, rc remote.Chat) (bool, error) {
	local, err := e.store.Chats().GetByID(ctx, rc.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		// New remote chat.
	case err != nil:
		return false, err
	default:
		// Present remotely again: any pending tombstone is void.
		if terr := e.store.Tombstones().DeleteByChatID(ctx, rc.ID); terr != nil {
			return false, terr
		}
		if rc.SyncVersion <= local.SyncVersion {
			return false, nil
		}
	}

	nowMs := e.now().UnixMilli()
	row := &models.ChatRow{
		ID:          rc.ID,
		Ciphertext:  rc.Ciphertext,
		Nonce:       rc.Nonce,
		CreatedAtMs: rc.CreatedAtMs,
		SyncedAtMs:  &nowMs,
		SyncVersion: rc.SyncVersion,
	}
	if err := e.store.UpsertRemote(ctx, row); err != nil {
		return false, err
	}
	return true, nil
}

// advanceTombstones handles chats that were synced at least once but did
// not appear in the completed pull pass. Promotion to a hard delete
// requires the absence to outlive the TTL and the chat to have been
// locally quiescent past the grace period.
func (e *Engine) advanceTombstones(ctx context.Context, seen map[string]struct{}) (deleted bool, err error) {
	syncedIDs, err := e.store.Chats().ListSyncedIDs(ctx)
	if err != nil {
		return false, err
	}
	now := e.now()

	for _, id := range syncedIDs {
		if _, ok := seen[id]; ok {
			continue
		}

		row, err := e.store.Chats().GetByID(ctx, id)
		if err != nil {
			return deleted, err
		}
		if row.LocallyModified {
			// Pending push; its absence remotely is expected.
			continue
		}

		ts, err := e.store.Tombstones().GetByChatID(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			lastSeen := time.UnixMilli(row.CreatedAtMs).UTC()
			if row.SyncedAtMs != nil {
				lastSeen = time.UnixMilli(*row.SyncedAtMs).UTC()
			}
			ts = &models.Tombstone{ChatID: id, LastSeenLocally: lastSeen}
		} else if err != nil {
			return deleted, err
		}

		if ts.FirstMissingFromRemote == nil {
			missing := now
			ts.FirstMissingFromRemote = &missing
			if err := e.store.Tombstones().Upsert(ctx, ts); err != nil {
				return deleted, err
			}
		}

		if !ts.EligibleForDeletion(now, e.opts.DeletionGrace, e.opts.DeletionTTL) {
			continue
		}

		if err := e.store.DeleteChat(ctx, id); err != nil {
			return deleted, err
		}
		if err := e.store.Tombstones().DeleteByChatID(ctx, id); err != nil {
			return deleted, err
		}
		e.bus.Emit(eventbus.ChatDeleted{ChatID: id})
		e.logger.Info(ctx, "chat deleted by tombstone promotion", "chat_id", id)
		deleted = true
	}
	return deleted, nil
}

// DeleteChat removes a chat immediately on this device and requests the
// remote deletion. A failed or unavailable remote delete is queued and
// retried on later cycles; the local removal never waits on the network.
func (e *Engine) DeleteChat(ctx context.Context, id string) error {
	row, err := e.store.Chats().GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	wasSynced := row.SyncedAtMs != nil

	if err := e.store.DeleteChat(ctx, id); err != nil {
		return err
	}
	if err := e.store.Tombstones().DeleteByChatID(ctx, id); err != nil {
		return err
	}
	e.bus.Emit(eventbus.ChatDeleted{ChatID: id})

	if !wasSynced {
		return nil
	}

	if !e.tokens.SignedIn() {
		return e.store.QueueRemoteDelete(ctx, id)
	}

	err = e.tokens.WithAuthRetry(ctx, func(ctx context.Context, token string) error {
		return e.remote.DeleteChat(ctx, token, id)
	})
	if err != nil {
		e.logger.Warn(ctx, "remote delete failed, queued for retry", "chat_id", id, "error", err.Error())
		return e.store.QueueRemoteDelete(ctx, id)
	}
	return nil
}

// retryPendingDeletes drains the queue of remote deletions that failed
// earlier. Still-failing entries stay queued.
func (e *Engine) retryPendingDeletes(ctx context.Context) {
	ids, err := e.store.PendingRemoteDeletes(ctx)
	if err != nil {
		e.logger.Warn(ctx, "listing pending remote deletes failed", "error", err.Error())
		return
	}

	for _, id := range ids {
		err := e.tokens.WithAuthRetry(ctx, func(ctx context.Context, token string) error {
			return e.remote.DeleteChat(ctx, token, id)
		})
		if err != nil {
			e.logger.Warn(ctx, "pending remote delete failed", "chat_id", id, "error", err.Error())
			continue
		}
		if err := e.store.AckRemoteDelete(ctx, id); err != nil {
			e.logger.Warn(ctx, "acknowledging remote delete failed", "chat_id", id, "error", err.Error())
		}
	}
}

// RunProfileCycle reconciles the single encrypted profile record: a
// locally modified profile is pushed, otherwise a newer remote version
// is adopted.
func (e *Engine) RunProfileCycle(ctx context.Context) error {
	if !e.tokens.SignedIn() {
		return nil
	}

	local, err := e.store.ProfileRow(ctx)
	exists := true
	if errors.Is(err, common.ErrorNotFound) {
		exists = false
	} else if err != nil {
		return err
	}

	if exists && local.Modified {
		if err := e.pushProfile(ctx, local); err != nil {
			return err
		}
		return e.updateStatus(ctx, models.ScopeProfile)
	}

	if err := e.pullProfile(ctx, local, exists); err != nil {
		return err
	}
	return e.updateStatus(ctx, models.ScopeProfile)
}

func (e *Engine) pushProfile(ctx context.Context, local *models.ProfileRow) error {
	wire := remote.Profile{
		Ciphertext:  local.Ciphertext,
		Nonce:       local.Nonce,
		SyncVersion: local.SyncVersion,
	}

	var res *remote.ProfilePutResult
	err := e.withTransientRetry(ctx, func(ctx context.Context) error {
		return e.tokens.WithAuthRetry(ctx, func(ctx context.Context, token string) error {
			var err error
			res, err = e.remote.PutProfile(ctx, token, wire)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("pushing profile: %w", err)
	}
	return e.store.MarkProfilePushed(ctx, res.SyncVersion)
}

func (e *Engine) pullProfile(ctx context.Context, local *models.ProfileRow, exists bool) error {
	var p *remote.Profile
	err := e.withTransientRetry(ctx, func(ctx context.Context) error {
		return e.tokens.WithAuthRetry(ctx, func(ctx context.Context, token string) error {
			var err error
			p, err = e.remote.GetProfile(ctx, token)
			return err
		})
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pulling profile: %w", err)
	}

	if exists && p.SyncVersion <= local.SyncVersion {
		return nil
	}
	if err := e.store.ApplyRemoteProfile(ctx, p.Ciphertext, p.Nonce, p.SyncVersion); err != nil {
		return err
	}
	e.bus.Emit(eventbus.ReloadRequired{})
	return nil
}

func (e *Engine) updateStatus(ctx context.Context, scope string) error {
	count := 0
	switch scope {
	case models.ScopeChats:
		ids, err := e.store.Chats().ListSyncedIDs(ctx)
		if err != nil {
			return err
		}
		count = len(ids)
	case models.ScopeProfile:
		if _, err := e.store.ProfileRow(ctx); err == nil {
			count = 1
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
	}

	return e.store.SyncStatus().Set(ctx, &models.SyncStatus{
		Scope:       scope,
		Count:       count,
		LastUpdated: e.now(),
	})
}
