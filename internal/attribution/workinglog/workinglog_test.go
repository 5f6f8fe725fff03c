package workinglog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistAndGetFileVersion_RoundTrip(t *testing.T) {
	l := Open(t.TempDir(), "base1")

	hash, err := l.PersistFileVersion([]byte("hello\n"))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	got, err := l.GetFileVersion(hash)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestPersistFileVersion_IdempotentOnRewrite(t *testing.T) {
	l := Open(t.TempDir(), "base1")

	h1, err := l.PersistFileVersion([]byte("same\n"))
	require.NoError(t, err)
	h2, err := l.PersistFileVersion([]byte("same\n"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGetFileVersion_MissingBlob(t *testing.T) {
	l := Open(t.TempDir(), "base1")
	_, err := l.GetFileVersion("doesnotexist")
	require.ErrorIs(t, err, ErrMissing)
}

func TestAppendAndReadAllCheckpoints_PreservesOrder(t *testing.T) {
	l := Open(t.TempDir(), "base1")

	cp1 := Checkpoint{Kind: KindHuman, Author: "human", Timestamp: 1}
	cp2 := Checkpoint{Kind: KindAIAgent, Author: "H", AgentID: &AgentID{Tool: "cursor", ID: "s1"}, Timestamp: 2}

	require.NoError(t, l.AppendCheckpoint(cp1))
	require.NoError(t, l.AppendCheckpoint(cp2))

	got, err := l.ReadAllCheckpoints()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, CheckpointAPIVersion, got[0].APIVersion)
	assert.Equal(t, int64(1), got[0].Timestamp)
	assert.Equal(t, int64(2), got[1].Timestamp)
}

func TestReadAllCheckpoints_NoFileReturnsEmpty(t *testing.T) {
	l := Open(t.TempDir(), "base1")
	got, err := l.ReadAllCheckpoints()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadAllCheckpoints_SkipsUnknownAPIVersion(t *testing.T) {
	l := Open(t.TempDir(), "base1")
	require.NoError(t, l.AppendCheckpoint(Checkpoint{Kind: KindHuman, Timestamp: 1}))
	// AppendCheckpoint only defaults an empty APIVersion; an explicit,
	// mismatched one is preserved, so this line survives as genuinely stale.
	require.NoError(t, l.AppendCheckpoint(Checkpoint{APIVersion: "checkpoint/0.0.1", Kind: KindHuman, Timestamp: 2}))

	got, err := l.ReadAllCheckpoints()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].Timestamp)
}

func TestDelete_RemovesWorkingLogDirectory(t *testing.T) {
	l := Open(t.TempDir(), "base1")
	require.NoError(t, l.AppendCheckpoint(Checkpoint{Kind: KindHuman}))
	require.True(t, l.Exists())

	require.NoError(t, l.Delete())
	assert.False(t, l.Exists())
}

func TestWriteAndReadInitialAttributions_RoundTrip(t *testing.T) {
	l := Open(t.TempDir(), "base1")

	files := map[string][]LineAttributionEntry{
		"a.txt": {{StartLine: 1, EndLine: 2, AuthorID: "H"}},
	}
	prompts := map[string]PromptRecord{
		"H": {AgentID: AgentID{Tool: "cursor", ID: "s1"}, AcceptedLines: 2},
	}

	require.NoError(t, l.WriteInitialAttributions(files, prompts))

	got := l.ReadInitialAttributions()
	assert.Equal(t, files, got.Files)
	assert.Equal(t, prompts, got.Prompts)
}

func TestWriteInitialAttributions_PrunesEmptyFilesAndSkipsWriteWhenAllEmpty(t *testing.T) {
	l := Open(t.TempDir(), "base1")

	err := l.WriteInitialAttributions(map[string][]LineAttributionEntry{
		"a.txt": {},
		"b.txt": {{StartLine: 1, EndLine: 1, AuthorID: "H"}},
	}, nil)
	require.NoError(t, err)

	got := l.ReadInitialAttributions()
	assert.NotContains(t, got.Files, "a.txt")
	assert.Contains(t, got.Files, "b.txt")
}

func TestWriteInitialAttributions_NoFilesWritesNothing(t *testing.T) {
	l := Open(t.TempDir(), "base1")
	require.NoError(t, l.WriteInitialAttributions(map[string][]LineAttributionEntry{"a.txt": {}}, nil))
	assert.False(t, l.Exists())
}

func TestReadInitialAttributions_MissingFileReturnsEmptyDefault(t *testing.T) {
	l := Open(t.TempDir(), "base1")
	got := l.ReadInitialAttributions()
	assert.Empty(t, got.Files)
	assert.Empty(t, got.Prompts)
}
