package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAdmin.Valid() {
		t.Error("expected USER and ADMIN to be valid roles")
	}
	for _, r := range []Role{"", "user", "ROOT"} {
		if r.Valid() {
			t.Errorf("role %q should be invalid", r)
		}
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Now()

	forever := &APIKey{}
	if forever.Expired(now) {
		t.Error("key without expiry reported expired")
	}

	future := now.Add(time.Hour)
	if (&APIKey{ExpiresAt: &future}).Expired(now) {
		t.Error("future expiry reported expired")
	}

	past := now.Add(-time.Hour)
	if !(&APIKey{ExpiresAt: &past}).Expired(now) {
		t.Error("past expiry not reported expired")
	}

	// Expiry boundary counts as expired.
	if !(&APIKey{ExpiresAt: &now}).Expired(now) {
		t.Error("exact expiry instant not reported expired")
	}
}

func TestSensitiveFieldsNotSerialized(t *testing.T) {
	msID := "ms-123"
	user := User{ID: 1, Email: "a@example.com", MicrosoftID: &msID}
	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	if strings.Contains(string(data), "ms-123") {
		t.Error("microsoft_id leaked into user JSON")
	}

	key := APIKey{ID: 1, KeyID: "abc", KeyHash: "$2a$10$secret-hash"}
	data, err = json.Marshal(key)
	if err != nil {
		t.Fatalf("marshal api key: %v", err)
	}
	if strings.Contains(string(data), "secret-hash") {
		t.Error("key hash leaked into api key JSON")
	}

	token := RefreshToken{ID: 1, TokenHash: "sha-of-token"}
	data, err = json.Marshal(token)
	if err != nil {
		t.Fatalf("marshal refresh token: %v", err)
	}
	if strings.Contains(string(data), "sha-of-token") {
		t.Error("token hash leaked into refresh token JSON")
	}
}

func TestUserInfoProjection(t *testing.T) {
	msID := "ms-9"
	user := User{ID: 7, Email: "p@example.com", Name: "P", Role: RoleAdmin, MicrosoftID: &msID}

	info := user.Info()
	if info.ID != 7 || info.Email != "p@example.com" || info.Role != RoleAdmin {
		t.Errorf("unexpected projection: %+v", info)
	}
}
