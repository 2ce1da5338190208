// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/metrics"
	"github.com/openlancer/relay/internal/models"
)

// Key prefixes. Message keys embed a zero-padded sequence so Badger's
// lexicographic iteration yields per-conversation delivery order.
const (
	convKeyPrefix     = "conv:"
	userConvKeyPrefix = "userconv:"
	directKeyPrefix   = "direct:"
	seqKeyPrefix      = "seq:"
	msgKeyPrefix      = "msg:"
	msgLocKeyPrefix   = "msgloc:"
	pendKeyPrefix     = "pend:"
	idempKeyPrefix    = "idemp:"
	lastSeenKeyPrefix = "lastseen:"
)

// conflictRetries bounds the retry loop for Badger write conflicts, which
// occur when two sends race on the same conversation sequence.
const conflictRetries = 8

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db    *badger.DB
	cache *convCache
}

// Open opens (or creates) a BadgerDB-backed store at path. An empty path with
// inMemory set runs fully in memory, which is what tests use.
func Open(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithInMemory(inMemory).
		WithLogger(nil)
	if inMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an already opened Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, cache: newConvCache(1024)}
}

// DB exposes the underlying database for the GC service.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func seqSuffix(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

func msgKey(conv models.ConversationID, seq uint64) []byte {
	return []byte(msgKeyPrefix + string(conv) + ":" + seqSuffix(seq))
}

func pendKey(user models.UserID, conv models.ConversationID, seq uint64) []byte {
	return []byte(pendKeyPrefix + string(user) + ":" + string(conv) + ":" + seqSuffix(seq))
}

// getJSON reads and unmarshals a single key inside txn.
func getJSON(txn *badger.Txn, key []byte, out interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return txn.Set(key, data)
}

// EnsureDirectConversation returns the direct conversation between a and b,
// creating it on first contact.
func (s *BadgerStore) EnsureDirectConversation(ctx context.Context, a, b models.UserID) (*models.Conversation, bool, error) {
	defer metrics.ObserveStoreOp("ensure_direct", time.Now())

	directKey := []byte(directKeyPrefix + models.DirectKey(a, b))
	var conv *models.Conversation
	created := false

	err := s.update(func(txn *badger.Txn) error {
		item, err := txn.Get(directKey)
		if err == nil {
			var id string
			if verr := item.Value(func(val []byte) error {
				id = string(val)
				return nil
			}); verr != nil {
				return verr
			}
			conv = &models.Conversation{}
			return getJSON(txn, []byte(convKeyPrefix+id), conv)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		conv = &models.Conversation{
			ID:        models.ConversationID(uuid.New().String()),
			Type:      models.ConversationDirect,
			Members:   []models.UserID{a, b},
			CreatedBy: a,
			CreatedAt: time.Now().UTC(),
		}
		created = true

		if err := txn.Set(directKey, []byte(conv.ID)); err != nil {
			return err
		}
		return s.writeConversation(txn, conv)
	})
	if err != nil {
		return nil, false, err
	}
	s.cache.put(conv)
	return conv, created, nil
}

// CreateGroup creates a group room with the creator as first member.
func (s *BadgerStore) CreateGroup(ctx context.Context, name string, creator models.UserID, members []models.UserID) (*models.Conversation, error) {
	defer metrics.ObserveStoreOp("create_group", time.Now())

	all := []models.UserID{creator}
	for _, m := range members {
		if m != creator {
			all = append(all, m)
		}
	}

	conv := &models.Conversation{
		ID:        models.ConversationID(uuid.New().String()),
		Type:      models.ConversationGroup,
		Name:      name,
		Members:   all,
		CreatedBy: creator,
		CreatedAt: time.Now().UTC(),
	}

	err := s.update(func(txn *badger.Txn) error {
		return s.writeConversation(txn, conv)
	})
	if err != nil {
		return nil, err
	}
	s.cache.put(conv)
	return conv, nil
}

// writeConversation persists the conversation and its membership index.
func (s *BadgerStore) writeConversation(txn *badger.Txn, conv *models.Conversation) error {
	if err := setJSON(txn, []byte(convKeyPrefix+string(conv.ID)), conv); err != nil {
		return err
	}
	for _, m := range conv.Members {
		key := []byte(userConvKeyPrefix + string(m) + ":" + string(conv.ID))
		if err := txn.Set(key, nil); err != nil {
			return err
		}
	}
	return nil
}

// AddMember adds user to a group room.
func (s *BadgerStore) AddMember(ctx context.Context, id models.ConversationID, user models.UserID) (*models.Conversation, error) {
	defer metrics.ObserveStoreOp("add_member", time.Now())

	var conv *models.Conversation
	err := s.update(func(txn *badger.Txn) error {
		conv = &models.Conversation{}
		if err := getJSON(txn, []byte(convKeyPrefix+string(id)), conv); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		if conv.HasMember(user) {
			return nil // idempotent
		}
		conv.Members = append(conv.Members, user)
		return s.writeConversation(txn, conv)
	})
	if err != nil {
		return nil, err
	}
	s.cache.put(conv)
	return conv, nil
}

// Conversation fetches a conversation, consulting the membership cache first.
func (s *BadgerStore) Conversation(ctx context.Context, id models.ConversationID) (*models.Conversation, error) {
	if conv, ok := s.cache.get(id); ok {
		return conv, nil
	}
	defer metrics.ObserveStoreOp("get_conversation", time.Now())

	conv := &models.Conversation{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(convKeyPrefix+string(id)), conv)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cache.put(conv)
	return conv, nil
}

// ConversationsFor lists the user's conversations via the membership index.
func (s *BadgerStore) ConversationsFor(ctx context.Context, user models.UserID) ([]*models.Conversation, error) {
	defer metrics.ObserveStoreOp("conversations_for", time.Now())

	var ids []models.ConversationID
	prefix := []byte(userConvKeyPrefix + string(user) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, models.ConversationID(strings.TrimPrefix(key, string(prefix))))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	convs := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.Conversation(ctx, id)
		if err != nil {
			if errors.Is(err, ErrConversationNotFound) {
				logging.Warn().Str("conversation", string(id)).Msg("dangling membership index entry")
				continue
			}
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// ContactsOf returns the distinct peers across all of the user's
// conversations, sorted for deterministic fan-out.
func (s *BadgerStore) ContactsOf(ctx context.Context, user models.UserID) ([]models.UserID, error) {
	convs, err := s.ConversationsFor(ctx, user)
	if err != nil {
		return nil, err
	}

	seen := make(map[models.UserID]struct{})
	for _, conv := range convs {
		for _, m := range conv.Members {
			if m != user {
				seen[m] = struct{}{}
			}
		}
	}

	contacts := make([]models.UserID, 0, len(seen))
	for id := range seen {
		contacts = append(contacts, id)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i] < contacts[j] })
	return contacts, nil
}

// AppendMessage persists msg, assigning its sequence and initial receipts.
func (s *BadgerStore) AppendMessage(ctx context.Context, msg *models.Message, idempotencyToken string) (*models.Message, bool, error) {
	defer metrics.ObserveStoreOp("append_message", time.Now())

	var persisted *models.Message
	created := false

	err := s.update(func(txn *badger.Txn) error {
		// Duplicate client retry: return the original message untouched.
		if idempotencyToken != "" {
			item, err := txn.Get([]byte(idempKeyPrefix + idempotencyToken))
			if err == nil {
				var loc string
				if verr := item.Value(func(val []byte) error {
					loc = string(val)
					return nil
				}); verr != nil {
					return verr
				}
				persisted = &models.Message{}
				return getJSON(txn, []byte(loc), persisted)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		conv := &models.Conversation{}
		if err := getJSON(txn, []byte(convKeyPrefix+string(msg.ConversationID)), conv); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		if !conv.HasMember(msg.SenderID) {
			return ErrNotMember
		}

		seq, err := s.nextSeq(txn, msg.ConversationID)
		if err != nil {
			return err
		}

		stored := *msg
		stored.Seq = seq
		stored.Recipients = make(map[models.UserID]*models.Receipt, len(conv.Members)-1)
		for _, m := range conv.Members {
			if m != msg.SenderID {
				stored.Recipients[m] = &models.Receipt{State: models.StateSent}
			}
		}

		key := msgKey(stored.ConversationID, seq)
		if err := setJSON(txn, key, &stored); err != nil {
			return err
		}
		if err := txn.Set([]byte(msgLocKeyPrefix+string(stored.ID)), key); err != nil {
			return err
		}
		for recipient := range stored.Recipients {
			if err := txn.Set(pendKey(recipient, stored.ConversationID, seq), key); err != nil {
				return err
			}
		}
		if idempotencyToken != "" {
			if err := txn.Set([]byte(idempKeyPrefix+idempotencyToken), key); err != nil {
				return err
			}
		}

		persisted = &stored
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return persisted, created, nil
}

// nextSeq increments and returns the conversation's message sequence.
func (s *BadgerStore) nextSeq(txn *badger.Txn, conv models.ConversationID) (uint64, error) {
	key := []byte(seqKeyPrefix + string(conv))
	var seq uint64

	item, err := txn.Get(key)
	if err == nil {
		if verr := item.Value(func(val []byte) error {
			_, serr := fmt.Sscanf(string(val), "%d", &seq)
			return serr
		}); verr != nil {
			return 0, verr
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, err
	}

	seq++
	if err := txn.Set(key, []byte(fmt.Sprintf("%d", seq))); err != nil {
		return 0, err
	}
	return seq, nil
}

// Messages returns conversation history in sequence order.
func (s *BadgerStore) Messages(ctx context.Context, id models.ConversationID, limit int, beforeSeq uint64) ([]*models.Message, error) {
	defer metrics.ObserveStoreOp("messages", time.Now())

	if limit <= 0 {
		limit = 50
	}

	var msgs []*models.Message
	prefix := []byte(msgKeyPrefix + string(id) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: limit})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			msg := &models.Message{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, msg)
			}); err != nil {
				return err
			}
			if beforeSeq > 0 && msg.Seq >= beforeSeq {
				break
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keep the most recent window when history exceeds the limit.
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// MessageByID fetches a message through its locator entry.
func (s *BadgerStore) MessageByID(ctx context.Context, id models.MessageID) (*models.Message, error) {
	msg := &models.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		return s.loadByLocator(txn, id, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BadgerStore) loadByLocator(txn *badger.Txn, id models.MessageID, msg *models.Message) error {
	item, err := txn.Get([]byte(msgLocKeyPrefix + string(id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	var loc []byte
	if err := item.Value(func(val []byte) error {
		loc = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return err
	}
	return getJSON(txn, loc, msg)
}

// MarkDelivered transitions (message, recipient) from sent to delivered.
// Later states never revert; marking twice is a no-op.
func (s *BadgerStore) MarkDelivered(ctx context.Context, id models.MessageID, recipient models.UserID, at time.Time) (*models.Message, bool, error) {
	defer metrics.ObserveStoreOp("mark_delivered", time.Now())

	var msg *models.Message
	changed := false

	err := s.update(func(txn *badger.Txn) error {
		msg = &models.Message{}
		if err := s.loadByLocator(txn, id, msg); err != nil {
			return err
		}

		receipt := msg.Receipt(recipient)
		if receipt == nil {
			return ErrNotMember
		}
		if !receipt.State.Before(models.StateDelivered) {
			return nil
		}

		ts := at.UTC()
		receipt.State = models.StateDelivered
		receipt.DeliveredAt = &ts
		changed = true

		if err := txn.Delete(pendKey(recipient, msg.ConversationID, msg.Seq)); err != nil {
			return err
		}
		return setJSON(txn, msgKey(msg.ConversationID, msg.Seq), msg)
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		metrics.RecordDeliveryTransition(string(models.StateDelivered))
	}
	return msg, changed, nil
}

// MarkRead transitions the given messages to read for reader, coercing the
// delivered step when the read arrives first.
func (s *BadgerStore) MarkRead(ctx context.Context, id models.ConversationID, msgIDs []models.MessageID, reader models.UserID, at time.Time) ([]*models.Message, error) {
	defer metrics.ObserveStoreOp("mark_read", time.Now())

	var updated []*models.Message
	err := s.update(func(txn *badger.Txn) error {
		updated = updated[:0]
		for _, msgID := range msgIDs {
			msg := &models.Message{}
			if err := s.loadByLocator(txn, msgID, msg); err != nil {
				if errors.Is(err, ErrMessageNotFound) {
					continue
				}
				return err
			}
			if msg.ConversationID != id {
				continue
			}

			receipt := msg.Receipt(reader)
			if receipt == nil || receipt.State == models.StateRead {
				continue
			}

			ts := at.UTC()
			if receipt.State == models.StateSent {
				// A read implies delivery even if the delivered ack was lost.
				receipt.DeliveredAt = &ts
				if err := txn.Delete(pendKey(reader, msg.ConversationID, msg.Seq)); err != nil {
					return err
				}
			}
			receipt.State = models.StateRead
			receipt.ReadAt = &ts

			if err := setJSON(txn, msgKey(msg.ConversationID, msg.Seq), msg); err != nil {
				return err
			}
			updated = append(updated, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range updated {
		metrics.RecordDeliveryTransition(string(models.StateRead))
	}
	return updated, nil
}

// UndeliveredFor scans the pending index. Keys sort by conversation then
// sequence, which preserves per-conversation order for replay.
func (s *BadgerStore) UndeliveredFor(ctx context.Context, user models.UserID) ([]*models.Message, error) {
	defer metrics.ObserveStoreOp("undelivered_for", time.Now())

	var msgs []*models.Message
	prefix := []byte(pendKeyPrefix + string(user) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var loc []byte
			if err := it.Item().Value(func(val []byte) error {
				loc = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}
			msg := &models.Message{}
			if err := getJSON(txn, loc, msg); err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// SetLastSeen records the user's last-seen timestamp durably.
func (s *BadgerStore) SetLastSeen(ctx context.Context, user models.UserID, at time.Time) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastSeenKeyPrefix+string(user)), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
}

// LastSeen returns the recorded last-seen time, or nil when unknown.
func (s *BadgerStore) LastSeen(ctx context.Context, user models.UserID) (*time.Time, error) {
	var ts *time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastSeenKeyPrefix + string(user)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, perr := time.Parse(time.RFC3339Nano, string(val))
			if perr != nil {
				return perr
			}
			ts = &parsed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}
