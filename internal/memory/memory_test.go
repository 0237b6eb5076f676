package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.SetPreference("alice", "language", "中文")
	s.SetPreference("alice", "work_dir", "/srv/repo")
	s.SetPreference("alice", "language", "english")

	prefs := s.Preferences("alice")
	assert.Equal(t, "english", prefs["language"])
	assert.Equal(t, "/srv/repo", prefs["work_dir"])
	assert.Empty(t, s.Preferences("bob"))
}

func TestStoreSurvivesReload(t *testing.T) {
	root := t.TempDir()
	s, err := NewStore(root, nil)
	require.NoError(t, err)
	s.SetPreference("alice", "language", "english")
	s.AddInteraction("alice", "fix the tests", "done", true)
	s.AddEntry(&Entry{UserID: "alice", Kind: KindFact, Content: "repo uses Go 1.24"})

	reloaded, err := NewStore(root, nil)
	require.NoError(t, err)
	assert.Equal(t, "english", reloaded.Preferences("alice")["language"])
	require.Len(t, reloaded.RecentInteractions("alice", 10), 1)
	require.Len(t, reloaded.Entries("alice"), 1)
}

func TestRecentInteractionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	s.AddInteraction("alice", "first", "r1", true)
	s.AddInteraction("alice", "second", "r2", false)
	s.AddInteraction("bob", "other user", "r3", true)

	got := s.RecentInteractions("alice", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Prompt)
	assert.Equal(t, "first", got[1].Prompt)
}

func TestEntryTTLAndPurge(t *testing.T) {
	s := newTestStore(t)
	e := s.AddEntry(&Entry{UserID: "alice", Kind: KindFact, Content: "live"})
	require.NotNil(t, e.ExpiresAt)
	assert.WithinDuration(t, e.CreatedAt.Add(DefaultTTL), *e.ExpiresAt, time.Second)

	past := time.Now().Add(-time.Hour)
	s.AddEntry(&Entry{UserID: "alice", Kind: KindFact, Content: "stale", ExpiresAt: &past})

	assert.Len(t, s.Entries("alice"), 1)
	assert.Equal(t, 1, s.PurgeExpired())
	assert.Len(t, s.Entries("alice"), 1)
}

func TestTouchBumpsAccessCount(t *testing.T) {
	s := newTestStore(t)
	e := s.AddEntry(&Entry{UserID: "alice", Kind: KindFact, Content: "x"})
	s.Touch(e.ID)
	s.Touch(e.ID)
	assert.Equal(t, 2, s.Entries("alice")[0].AccessCount)
}

func TestKeywordRetrieval(t *testing.T) {
	s := newTestStore(t)
	r, err := NewRetriever(s, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.Remember(ctx, &Entry{UserID: "alice", Kind: KindPreference, Content: "prefers pytest over unittest for python projects"})
	require.NoError(t, err)
	_, err = r.Remember(ctx, &Entry{UserID: "alice", Kind: KindFact, Content: "deploy target is kubernetes"})
	require.NoError(t, err)
	_, err = r.Remember(ctx, &Entry{UserID: "bob", Kind: KindFact, Content: "python is bob's favorite"})
	require.NoError(t, err)

	hits, err := r.Retrieve(ctx, "alice", "run the python tests with pytest")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Content, "pytest")
	assert.Equal(t, 1, hits[0].AccessCount)
}

func TestKeywordRetrievalRespectsMinRelevance(t *testing.T) {
	s := newTestStore(t)
	r, err := NewRetriever(s, nil, nil)
	require.NoError(t, err)

	_, err = r.Remember(context.Background(), &Entry{UserID: "alice", Kind: KindFact, Content: "unrelated note about gardening"})
	require.NoError(t, err)

	hits, err := r.Retrieve(context.Background(), "alice", "configure the database connection pool")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFormatContext(t *testing.T) {
	out := FormatContext(
		map[string]string{"language": "english"},
		[]*Entry{{Kind: KindFact, Content: "repo uses Go"}},
		[]*Interaction{{Prompt: "fix tests", Success: false}},
	)
	assert.Contains(t, out, "User preferences:\n- language: english")
	assert.Contains(t, out, "Relevant memories:\n- [fact] repo uses Go")
	assert.Contains(t, out, "Recent interactions:\n- (failed) fix tests")

	assert.Empty(t, FormatContext(nil, nil, nil))
}
