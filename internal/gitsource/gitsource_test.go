package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "https", url: "https://github.com/owner/decks.git", want: filepath.Join("repos", "github.com", "owner", "decks")},
		{name: "https without suffix", url: "https://example.org/decks", want: filepath.Join("repos", "example.org", "decks")},
		{name: "scp-like", url: "git@github.com:owner/decks.git", want: filepath.Join("repos", "github.com", "owner", "decks")},
		{name: "garbage", url: "not a url", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected an error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRemote(t *testing.T) {
	for source, want := range map[string]bool{
		"https://github.com/owner/decks": true,
		"git@github.com:owner/decks.git": true,
		"/home/me/decks":                 false,
		"decks":                          false,
	} {
		if got := IsRemote(source); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", source, got, want)
		}
	}
}

// TestSyncClonesThenPulls uses a local repository as the remote.
func TestSyncClonesThenPulls(t *testing.T) {
	remote := t.TempDir()
	repo, err := git.PlainInit(remote, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(remote, "deck.md"), []byte("Q: eins\nA: one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("deck.md"); err != nil {
		t.Fatal(err)
	}
	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)}
	if _, err := wt.Commit("add deck", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatal(err)
	}

	local := filepath.Join(t.TempDir(), "checkout")
	if err := Sync(context.Background(), remote, local, nil); err != nil {
		t.Fatalf("clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(local, "deck.md")); err != nil {
		t.Fatalf("Expected the deck to be checked out: %v", err)
	}
	if err := Sync(context.Background(), remote, local, nil); err != nil {
		t.Fatalf("pull: %v", err)
	}
}
