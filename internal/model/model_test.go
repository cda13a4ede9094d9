package model

import "testing"

func TestSenderRoleOpposite(t *testing.T) {
	if SenderAgent.Opposite() != SenderCustomer {
		t.Fatalf("agent should map to customer")
	}
	if SenderCustomer.Opposite() != SenderAgent {
		t.Fatalf("customer should map to agent")
	}
	if SenderRole("bot").Valid() {
		t.Fatalf("unexpected valid role")
	}
}

func TestConversationStatusValid(t *testing.T) {
	if !ConversationStatusOpen.Valid() || !ConversationStatusClosed.Valid() {
		t.Fatal("known statuses should be valid")
	}
	if ConversationStatus("archived").Valid() {
		t.Fatal("unknown status should be invalid")
	}
}

func TestPageStateLoaded(t *testing.T) {
	if (PageState{}).Loaded() {
		t.Fatal("empty state is not loaded")
	}
	if !(PageState{Page: 1}).Loaded() {
		t.Fatal("page 1 is loaded")
	}
}
