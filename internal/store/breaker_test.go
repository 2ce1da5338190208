// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openlancer/relay/internal/models"
)

// flakyStore fails every call with err until healed.
type flakyStore struct {
	Store
	err error
}

func (f *flakyStore) Conversation(ctx context.Context, id models.ConversationID) (*models.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.Conversation(ctx, id)
}

func (f *flakyStore) LastSeen(ctx context.Context, user models.UserID) (*time.Time, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.LastSeen(ctx, user)
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := newTestStore(t)
	b := NewBreakerStore(inner, time.Second)
	ctx := context.Background()

	conv, created, err := b.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("EnsureDirectConversation() error = %v", err)
	}
	if !created || conv == nil {
		t.Fatalf("conv = %v created = %v, want new conversation", conv, created)
	}

	msg, created, err := b.AppendMessage(ctx, testMessage(conv.ID, "alice", "hi"), "")
	if err != nil || !created {
		t.Fatalf("AppendMessage() = (%v, %v, %v)", msg, created, err)
	}

	got, changed, err := b.MarkDelivered(ctx, msg.ID, "bob", time.Now())
	if err != nil || !changed {
		t.Fatalf("MarkDelivered() = (%v, %v, %v)", got, changed, err)
	}

	ts, err := b.LastSeen(ctx, "never-seen")
	if err != nil {
		t.Fatalf("LastSeen() error = %v", err)
	}
	if ts != nil {
		t.Errorf("LastSeen() = %v, want nil", ts)
	}
}

func TestBreakerDomainErrorsDoNotTrip(t *testing.T) {
	inner := newTestStore(t)
	b := NewBreakerStore(inner, time.Second)
	ctx := context.Background()

	// Well past the consecutive-failure threshold.
	for i := 0; i < 10; i++ {
		if _, err := b.Conversation(ctx, "missing"); !errors.Is(err, ErrConversationNotFound) {
			t.Fatalf("Conversation() error = %v, want ErrConversationNotFound", err)
		}
	}

	// The breaker must still be closed.
	if _, _, err := b.EnsureDirectConversation(ctx, "alice", "bob"); err != nil {
		t.Fatalf("breaker tripped on domain errors: %v", err)
	}
}

func TestBreakerOpensOnRealFailures(t *testing.T) {
	inner := newTestStore(t)
	boom := errors.New("disk on fire")
	flaky := &flakyStore{Store: inner, err: boom}
	b := NewBreakerStore(flaky, time.Second)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := b.Conversation(ctx, "any"); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want %v", i, err, boom)
		}
	}

	// Breaker is now open; callers see ErrUnavailable without reaching storage.
	if _, err := b.Conversation(ctx, "any"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("open-state error = %v, want ErrUnavailable", err)
	}
	flaky.err = nil
	if _, err := b.LastSeen(ctx, "alice"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("open breaker should short-circuit all methods, got %v", err)
	}
}

func TestBreakerTimesOutSlowOps(t *testing.T) {
	inner := newTestStore(t)
	slow := &slowStore{Store: inner, delay: 200 * time.Millisecond}
	b := NewBreakerStore(slow, 20*time.Millisecond)

	if _, err := b.Conversation(context.Background(), "any"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("slow op error = %v, want ErrUnavailable", err)
	}
}

type slowStore struct {
	Store
	delay time.Duration
}

func (s *slowStore) Conversation(ctx context.Context, id models.ConversationID) (*models.Conversation, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.Conversation(ctx, id)
}
