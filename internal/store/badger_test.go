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

	"github.com/google/uuid"

	"github.com/openlancer/relay/internal/models"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open("", true)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMessage(conv models.ConversationID, sender models.UserID, content string) *models.Message {
	return &models.Message{
		ID:             models.MessageID(uuid.New().String()),
		ConversationID: conv,
		SenderID:       sender,
		Content:        content,
		Type:           models.MessageText,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestEnsureDirectConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, created, err := s.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("EnsureDirectConversation() error = %v", err)
	}
	if !created {
		t.Error("first call should report created=true")
	}
	if conv.Type != models.ConversationDirect {
		t.Errorf("Type = %v, want %v", conv.Type, models.ConversationDirect)
	}
	if !conv.HasMember("alice") || !conv.HasMember("bob") {
		t.Errorf("Members = %v, want alice and bob", conv.Members)
	}

	// Same pair in either order resolves to the same conversation.
	again, created, err := s.EnsureDirectConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("EnsureDirectConversation() second call error = %v", err)
	}
	if created {
		t.Error("second call should report created=false")
	}
	if again.ID != conv.ID {
		t.Errorf("conversation ID = %s, want %s", again.ID, conv.ID)
	}
}

func TestCreateGroupAndAddMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateGroup(ctx, "project-x", "alice", []models.UserID{"bob", "carol", "alice"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if conv.Type != models.ConversationGroup {
		t.Errorf("Type = %v, want %v", conv.Type, models.ConversationGroup)
	}
	if len(conv.Members) != 3 {
		t.Errorf("len(Members) = %d, want 3 (creator deduplicated)", len(conv.Members))
	}
	if conv.CreatedBy != "alice" {
		t.Errorf("CreatedBy = %s, want alice", conv.CreatedBy)
	}

	updated, err := s.AddMember(ctx, conv.ID, "dave")
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if !updated.HasMember("dave") {
		t.Error("dave should be a member after AddMember")
	}

	// Adding an existing member is idempotent.
	updated, err = s.AddMember(ctx, conv.ID, "dave")
	if err != nil {
		t.Fatalf("AddMember() repeat error = %v", err)
	}
	if len(updated.Members) != 4 {
		t.Errorf("len(Members) = %d after duplicate add, want 4", len(updated.Members))
	}

	// The new member's conversation listing includes the group.
	convs, err := s.ConversationsFor(ctx, "dave")
	if err != nil {
		t.Fatalf("ConversationsFor() error = %v", err)
	}
	if len(convs) != 1 || convs[0].ID != conv.ID {
		t.Errorf("ConversationsFor(dave) = %v, want [%s]", convs, conv.ID)
	}

	if _, err := s.AddMember(ctx, "no-such-conv", "eve"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("AddMember(unknown) error = %v, want ErrConversationNotFound", err)
	}
}

func TestContactsOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.EnsureDirectConversation(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateGroup(ctx, "g", "alice", []models.UserID{"carol", "bob"}); err != nil {
		t.Fatal(err)
	}

	contacts, err := s.ContactsOf(ctx, "alice")
	if err != nil {
		t.Fatalf("ContactsOf() error = %v", err)
	}
	want := []models.UserID{"bob", "carol"}
	if len(contacts) != len(want) {
		t.Fatalf("ContactsOf() = %v, want %v", contacts, want)
	}
	for i := range want {
		if contacts[i] != want[i] {
			t.Errorf("contacts[%d] = %s, want %s", i, contacts[i], want[i])
		}
	}
}

func TestAppendMessageSequencesAndReceipts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateGroup(ctx, "g", "alice", []models.UserID{"bob", "carol"})
	if err != nil {
		t.Fatal(err)
	}

	first, created, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", "one"), "")
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if first.Seq != 1 {
		t.Errorf("first Seq = %d, want 1", first.Seq)
	}

	second, _, err := s.AppendMessage(ctx, testMessage(conv.ID, "bob", "two"), "")
	if err != nil {
		t.Fatal(err)
	}
	if second.Seq != 2 {
		t.Errorf("second Seq = %d, want 2", second.Seq)
	}

	// Receipts cover every member except the sender, all starting at sent.
	if got := first.RecipientIDs(); len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Errorf("RecipientIDs() = %v, want [bob carol]", got)
	}
	for _, r := range first.Recipients {
		if r.State != models.StateSent {
			t.Errorf("initial receipt state = %v, want %v", r.State, models.StateSent)
		}
	}

	msgs, err := s.Messages(ctx, conv.ID, 10, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "one" || msgs[1].Content != "two" {
		t.Errorf("Messages() out of order: %v", msgs)
	}
}

func TestAppendMessageAuthorization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateGroup(ctx, "g", "alice", []models.UserID{"bob"})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.AppendMessage(ctx, testMessage(conv.ID, "mallory", "hi"), ""); !errors.Is(err, ErrNotMember) {
		t.Errorf("AppendMessage(non-member) error = %v, want ErrNotMember", err)
	}
	if _, _, err := s.AppendMessage(ctx, testMessage("no-such-conv", "alice", "hi"), ""); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("AppendMessage(unknown conv) error = %v, want ErrConversationNotFound", err)
	}

	// A rejected send persists nothing.
	msgs, err := s.Messages(ctx, conv.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(Messages()) = %d after rejected sends, want 0", len(msgs))
	}
}

func TestAppendMessageIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, err := s.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	token := uuid.New().String()
	first, created, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", "hello"), token)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first append should create")
	}

	// Retry with the same token returns the original, appends nothing.
	retry, created, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", "hello"), token)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if created {
		t.Error("retry created = true, want false")
	}
	if retry.ID != first.ID || retry.Seq != first.Seq {
		t.Errorf("retry returned %s seq %d, want original %s seq %d", retry.ID, retry.Seq, first.ID, first.Seq)
	}

	msgs, err := s.Messages(ctx, conv.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Errorf("len(Messages()) = %d, want 1", len(msgs))
	}
}

func TestMarkDeliveredMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, err := s.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, _, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", "hi"), "")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	updated, changed, err := s.MarkDelivered(ctx, msg.ID, "bob", now)
	if err != nil {
		t.Fatalf("MarkDelivered() error = %v", err)
	}
	if !changed {
		t.Error("first delivery should report changed=true")
	}
	r := updated.Receipt("bob")
	if r.State != models.StateDelivered || r.DeliveredAt == nil {
		t.Errorf("receipt = %+v, want delivered with timestamp", r)
	}

	// Second delivery is a no-op.
	_, changed, err = s.MarkDelivered(ctx, msg.ID, "bob", now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("repeat delivery should report changed=false")
	}

	// Delivered never reverts after read.
	if _, err := s.MarkRead(ctx, conv.ID, []models.MessageID{msg.ID}, "bob", now); err != nil {
		t.Fatal(err)
	}
	_, changed, err = s.MarkDelivered(ctx, msg.ID, "bob", now)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("delivery after read should report changed=false")
	}
	final, err := s.MessageByID(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Receipt("bob").State != models.StateRead {
		t.Errorf("state = %v after late delivery, want read", final.Receipt("bob").State)
	}

	// The sender has no receipt.
	if _, _, err := s.MarkDelivered(ctx, msg.ID, "alice", now); !errors.Is(err, ErrNotMember) {
		t.Errorf("MarkDelivered(sender) error = %v, want ErrNotMember", err)
	}
}

func TestMarkReadCoercesDelivered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, err := s.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	msg, _, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", "hi"), "")
	if err != nil {
		t.Fatal(err)
	}

	// Read arrives before any delivered ack.
	now := time.Now().UTC()
	updated, err := s.MarkRead(ctx, conv.ID, []models.MessageID{msg.ID}, "bob", now)
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("len(updated) = %d, want 1", len(updated))
	}
	r := updated[0].Receipt("bob")
	if r.State != models.StateRead {
		t.Errorf("State = %v, want read", r.State)
	}
	if r.DeliveredAt == nil || r.ReadAt == nil {
		t.Errorf("receipt = %+v, want both timestamps set", r)
	}

	// The pending index is cleared by the coerced delivery.
	pending, err := s.UndeliveredFor(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("len(UndeliveredFor) = %d after read, want 0", len(pending))
	}

	// Re-reading changes nothing.
	updated, err = s.MarkRead(ctx, conv.ID, []models.MessageID{msg.ID}, "bob", now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(updated) != 0 {
		t.Errorf("len(updated) = %d on repeat read, want 0", len(updated))
	}
}

func TestUndeliveredForOrderAndClearing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, err := s.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}

	var ids []models.MessageID
	for _, content := range []string{"one", "two", "three"} {
		msg, _, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", content), "")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}

	pending, err := s.UndeliveredFor(ctx, "bob")
	if err != nil {
		t.Fatalf("UndeliveredFor() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len(pending) = %d, want 3", len(pending))
	}
	for i, msg := range pending {
		if msg.Seq != uint64(i+1) {
			t.Errorf("pending[%d].Seq = %d, want %d", i, msg.Seq, i+1)
		}
	}

	// Delivering the middle message leaves the other two pending, in order.
	if _, _, err := s.MarkDelivered(ctx, ids[1], "bob", time.Now()); err != nil {
		t.Fatal(err)
	}
	pending, err = s.UndeliveredFor(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].Seq != 1 || pending[1].Seq != 3 {
		t.Errorf("pending after delivery = %v, want seqs [1 3]", pending)
	}

	// Nothing pending for the sender.
	pending, err = s.UndeliveredFor(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) for sender = %d, want 0", len(pending))
	}
}

func TestMessagesWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, _, err := s.EnsureDirectConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, _, err := s.AppendMessage(ctx, testMessage(conv.ID, "alice", "m"), ""); err != nil {
			t.Fatal(err)
		}
	}

	// Limit keeps the most recent window.
	msgs, err := s.Messages(ctx, conv.ID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 4 || msgs[1].Seq != 5 {
		t.Errorf("Messages(limit=2) seqs = %v, want [4 5]", msgs)
	}

	// beforeSeq pages backwards.
	msgs, err = s.Messages(ctx, conv.ID, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Seq != 1 || msgs[1].Seq != 2 {
		t.Errorf("Messages(beforeSeq=3) seqs = %v, want [1 2]", msgs)
	}
}

func TestLastSeenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts, err := s.LastSeen(ctx, "ghost")
	if err != nil {
		t.Fatalf("LastSeen() error = %v", err)
	}
	if ts != nil {
		t.Errorf("LastSeen(unknown) = %v, want nil", ts)
	}

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := s.SetLastSeen(ctx, "alice", at); err != nil {
		t.Fatalf("SetLastSeen() error = %v", err)
	}
	ts, err = s.LastSeen(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ts == nil || !ts.Equal(at) {
		t.Errorf("LastSeen() = %v, want %v", ts, at)
	}
}
