// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/openlancer/relay/internal/models"
)

// BreakerStore wraps a Store with a circuit breaker and a per-operation
// timeout. When storage misbehaves, callers get ErrUnavailable quickly — the
// sender owns retry policy — instead of piling up blocked sends.
type BreakerStore struct {
	inner     Store
	cb        *gobreaker.CircuitBreaker[any]
	opTimeout time.Duration
}

// NewBreakerStore wraps inner. opTimeout bounds every operation.
func NewBreakerStore(inner Store, opTimeout time.Duration) *BreakerStore {
	settings := gobreaker.Settings{
		Name:    "store",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Domain errors are valid answers, not storage failures; only real
		// faults may trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrConversationNotFound) ||
				errors.Is(err, ErrMessageNotFound) ||
				errors.Is(err, ErrNotMember)
		},
	}
	return &BreakerStore{
		inner:     inner,
		cb:        gobreaker.NewCircuitBreaker[any](settings),
		opTimeout: opTimeout,
	}
}

// execute runs op through the breaker with a deadline. The inner operation
// may outlive a timed-out call; Badger operations are short and the result
// is discarded.
func (b *BreakerStore) execute(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, b.opTimeout)
		defer cancel()

		type outcome struct {
			v   any
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			v, err := op(opCtx)
			done <- outcome{v, err}
		}()

		select {
		case out := <-done:
			return out.v, out.err
		case <-opCtx.Done():
			return nil, opCtx.Err()
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return result, nil
}

type ensureDirectResult struct {
	conv    *models.Conversation
	created bool
}

func (b *BreakerStore) EnsureDirectConversation(ctx context.Context, a, u models.UserID) (*models.Conversation, bool, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		conv, created, err := b.inner.EnsureDirectConversation(ctx, a, u)
		return ensureDirectResult{conv, created}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(ensureDirectResult)
	return r.conv, r.created, nil
}

func (b *BreakerStore) CreateGroup(ctx context.Context, name string, creator models.UserID, members []models.UserID) (*models.Conversation, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.CreateGroup(ctx, name, creator, members)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Conversation), nil
}

func (b *BreakerStore) AddMember(ctx context.Context, id models.ConversationID, user models.UserID) (*models.Conversation, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.AddMember(ctx, id, user)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Conversation), nil
}

func (b *BreakerStore) Conversation(ctx context.Context, id models.ConversationID) (*models.Conversation, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.Conversation(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Conversation), nil
}

func (b *BreakerStore) ConversationsFor(ctx context.Context, user models.UserID) ([]*models.Conversation, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.ConversationsFor(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Conversation), nil
}

func (b *BreakerStore) ContactsOf(ctx context.Context, user models.UserID) ([]models.UserID, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.ContactsOf(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.UserID), nil
}

type appendResult struct {
	msg     *models.Message
	created bool
}

func (b *BreakerStore) AppendMessage(ctx context.Context, msg *models.Message, token string) (*models.Message, bool, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		persisted, created, err := b.inner.AppendMessage(ctx, msg, token)
		return appendResult{persisted, created}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(appendResult)
	return r.msg, r.created, nil
}

func (b *BreakerStore) Messages(ctx context.Context, id models.ConversationID, limit int, beforeSeq uint64) ([]*models.Message, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.Messages(ctx, id, limit, beforeSeq)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Message), nil
}

func (b *BreakerStore) MessageByID(ctx context.Context, id models.MessageID) (*models.Message, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.MessageByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Message), nil
}

type markDeliveredResult struct {
	msg     *models.Message
	changed bool
}

func (b *BreakerStore) MarkDelivered(ctx context.Context, id models.MessageID, recipient models.UserID, at time.Time) (*models.Message, bool, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		msg, changed, err := b.inner.MarkDelivered(ctx, id, recipient, at)
		return markDeliveredResult{msg, changed}, err
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(markDeliveredResult)
	return r.msg, r.changed, nil
}

func (b *BreakerStore) MarkRead(ctx context.Context, id models.ConversationID, msgIDs []models.MessageID, reader models.UserID, at time.Time) ([]*models.Message, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.MarkRead(ctx, id, msgIDs, reader, at)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Message), nil
}

func (b *BreakerStore) UndeliveredFor(ctx context.Context, user models.UserID) ([]*models.Message, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.UndeliveredFor(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Message), nil
}

func (b *BreakerStore) SetLastSeen(ctx context.Context, user models.UserID, at time.Time) error {
	_, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return nil, b.inner.SetLastSeen(ctx, user, at)
	})
	return err
}

func (b *BreakerStore) LastSeen(ctx context.Context, user models.UserID) (*time.Time, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (any, error) {
		return b.inner.LastSeen(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*time.Time), nil
}

func (b *BreakerStore) Close() error {
	return b.inner.Close()
}
