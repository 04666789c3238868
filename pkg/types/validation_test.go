package types

import (
	"strings"
	"testing"
	"time"
)

func TestIsValidUserID(t *testing.T) {
	valid := []string{"u1", "alice_2024", "A-B-c", strings.Repeat("x", 50)}
	for _, id := range valid {
		if !IsValidUserID(id) {
			t.Errorf("%q should be valid", id)
		}
	}

	invalid := []string{"", "user with space", "user@mail", strings.Repeat("x", 51)}
	for _, id := range invalid {
		if IsValidUserID(id) {
			t.Errorf("%q should be invalid", id)
		}
	}
}

func TestUserValidate(t *testing.T) {
	user := &User{ID: "u1", Username: "alice", UserType: UserTypeStudent}
	if err := user.Validate(); err != nil {
		t.Errorf("valid user rejected: %v", err)
	}

	bad := &User{ID: "u1", Username: "alice", UserType: "admin"}
	if err := bad.Validate(); err != ErrInvalidUserType {
		t.Errorf("expected ErrInvalidUserType, got %v", err)
	}
}

func TestMessageValidate(t *testing.T) {
	msg := &Message{Content: "hello"}
	if err := msg.Validate(); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}

	empty := &Message{}
	if err := empty.Validate(); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	attachment := "file.pdf"
	withAttachment := &Message{Attachment: &attachment}
	if err := withAttachment.Validate(); err != nil {
		t.Errorf("attachment-only message rejected: %v", err)
	}

	system := &Message{IsSystem: true}
	if err := system.Validate(); err != nil {
		t.Errorf("system message rejected: %v", err)
	}

	huge := &Message{Content: strings.Repeat("a", maxContentBytes+1)}
	if err := huge.Validate(); err != ErrContentTooLarge {
		t.Errorf("expected ErrContentTooLarge, got %v", err)
	}
}

func TestMessageNewerThan(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	earlier := &Message{ID: "m1", Timestamp: base}
	later := &Message{ID: "m2", Timestamp: base.Add(time.Second)}
	if !later.NewerThan(earlier) || earlier.NewerThan(later) {
		t.Error("timestamp ordering broken")
	}

	// Ties fall back to id ordering.
	tied := &Message{ID: "m3", Timestamp: base}
	if !tied.NewerThan(earlier) || earlier.NewerThan(tied) {
		t.Error("tie-break on id broken")
	}
}

func TestPricingTierContains(t *testing.T) {
	max := 10.0
	bounded := &PricingTier{MinRate: 6, MaxRate: &max}
	if !bounded.Contains(6) || !bounded.Contains(10) {
		t.Error("bounds are inclusive")
	}
	if bounded.Contains(5.99) || bounded.Contains(10.01) {
		t.Error("rates outside the range must not match")
	}

	open := &PricingTier{MinRate: 26}
	if !open.Contains(1000) {
		t.Error("open-ended tier should match any rate above its floor")
	}
	if open.Contains(25) {
		t.Error("open-ended tier still enforces its floor")
	}
}
