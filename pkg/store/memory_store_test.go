package store

import (
	"errors"
	"testing"

	"tubestudio/pkg/domain"
)

func TestInsertAssignsIDAndTimestamp(t *testing.T) {
	s := NewMemoryStore()
	saved, err := s.InsertPackage("user-1", domain.GeneratedPackage{
		ID:        "client-chosen",
		ChannelID: "tech",
		Title:     "t",
		Script:    []domain.ScriptScene{{Narration: "n"}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved.ID == "" || saved.ID == "client-chosen" {
		t.Fatalf("expected server-assigned id, got %q", saved.ID)
	}
	if saved.CreatedAt.IsZero() {
		t.Fatalf("expected server-assigned timestamp")
	}

	got, ok, err := s.GetPackage("user-1", saved.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Title != "t" || got.ChannelID != "tech" {
		t.Fatalf("unexpected stored package: %+v", got)
	}
}

func TestPackagesAreOwnerScoped(t *testing.T) {
	s := NewMemoryStore()
	saved, _ := s.InsertPackage("user-1", domain.GeneratedPackage{Title: "mine"})

	if _, ok, _ := s.GetPackage("user-2", saved.ID); ok {
		t.Fatalf("other users must not see the package")
	}
	if err := s.DeletePackage("user-2", saved.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner delete must be not found, got %v", err)
	}
	if err := s.SavePackage("user-2", saved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-owner save must be not found, got %v", err)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := NewMemoryStore()
	first, _ := s.InsertPackage("user-1", domain.GeneratedPackage{Title: "first"})
	second, _ := s.InsertPackage("user-1", domain.GeneratedPackage{Title: "second"})
	// Force distinct ordering even when inserts share a timestamp tick.
	pkg, _, _ := s.GetPackage("user-1", first.ID)
	pkg.CreatedAt = second.CreatedAt.Add(-1)
	_ = s.SavePackage("user-1", pkg)

	all, err := s.ListPackages("user-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Title != "second" || all[1].Title != "first" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	limited, err := s.ListPackages("user-1", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Title != "second" {
		t.Fatalf("expected single newest row, got %+v", limited)
	}
}

func TestDeleteThenListExcludesRow(t *testing.T) {
	s := NewMemoryStore()
	keep, _ := s.InsertPackage("user-1", domain.GeneratedPackage{Title: "keep"})
	drop, _ := s.InsertPackage("user-1", domain.GeneratedPackage{Title: "drop"})

	if err := s.DeletePackage("user-1", drop.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, _ := s.ListPackages("user-1", 0)
	if len(rows) != 1 || rows[0].ID != keep.ID {
		t.Fatalf("deleted row must be absent, got %+v", rows)
	}
	if err := s.DeletePackage("user-1", drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete must be not found, got %v", err)
	}
}

func TestPreferencesRoundTripAndCredentialFlag(t *testing.T) {
	s := NewMemoryStore()
	if _, ok, _ := s.GetPreferences("user-1"); ok {
		t.Fatalf("expected no preferences yet")
	}

	err := s.SavePreferences(domain.Preferences{
		UserID:              "user-1",
		DefaultMood:         domain.MoodChill,
		DefaultDuration:     domain.DurationLong,
		EncryptedCredential: []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	prefs, ok, err := s.GetPreferences("user-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !prefs.CredentialSet {
		t.Fatalf("expected credential flag set")
	}
	if prefs.DefaultMood != domain.MoodChill || prefs.DefaultDuration != domain.DurationLong {
		t.Fatalf("unexpected preferences: %+v", prefs)
	}

	prefs.EncryptedCredential = nil
	if err := s.SavePreferences(prefs); err != nil {
		t.Fatalf("clear credential: %v", err)
	}
	cleared, _, _ := s.GetPreferences("user-1")
	if cleared.CredentialSet {
		t.Fatalf("expected credential flag cleared")
	}
}
