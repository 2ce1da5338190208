// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package models

import (
	"testing"
	"time"
)

func TestDeliveryStateBefore(t *testing.T) {
	tests := []struct {
		name string
		from DeliveryState
		to   DeliveryState
		want bool
	}{
		{"sent before delivered", StateSent, StateDelivered, true},
		{"sent before read", StateSent, StateRead, true},
		{"delivered before read", StateDelivered, StateRead, true},
		{"delivered not before sent", StateDelivered, StateSent, false},
		{"read not before delivered", StateRead, StateDelivered, false},
		{"read not before read", StateRead, StateRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.Before(tt.to); got != tt.want {
				t.Errorf("(%s).Before(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConversationMembership(t *testing.T) {
	conv := &Conversation{
		ID:      "c1",
		Type:    ConversationGroup,
		Members: []UserID{"alice", "bob", "carol"},
	}

	if !conv.HasMember("bob") {
		t.Error("expected bob to be a member")
	}
	if conv.HasMember("mallory") {
		t.Error("mallory must not be a member")
	}

	others := conv.OtherMembers("bob")
	if len(others) != 2 {
		t.Fatalf("expected 2 other members, got %d", len(others))
	}
	if others[0] != "alice" || others[1] != "carol" {
		t.Errorf("unexpected other members: %v", others)
	}
}

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	if DirectKey("alice", "bob") != DirectKey("bob", "alice") {
		t.Error("direct key must not depend on argument order")
	}
	if DirectKey("alice", "bob") == DirectKey("alice", "carol") {
		t.Error("direct keys for different pairs must differ")
	}
}

func TestMessageRecipientIDsSorted(t *testing.T) {
	msg := &Message{
		ID: "m1",
		Recipients: map[UserID]*Receipt{
			"carol": {State: StateSent},
			"alice": {State: StateSent},
			"bob":   {State: StateSent},
		},
		CreatedAt: time.Now(),
	}

	ids := msg.RecipientIDs()
	want := []UserID{"alice", "bob", "carol"}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("recipient order = %v, want %v", ids, want)
		}
	}
}

func TestValidMessageType(t *testing.T) {
	for _, valid := range []MessageType{MessageText, MessageFile, MessageSystem} {
		if !ValidMessageType(valid) {
			t.Errorf("%q should be valid", valid)
		}
	}
	if ValidMessageType("carrier-pigeon") {
		t.Error("unknown type should be invalid")
	}
}
