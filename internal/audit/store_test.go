package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/contracts"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func blockVerdict(id string) *contracts.Verdict {
	return &contracts.Verdict{
		VerdictID:        id,
		Severity:         contracts.SeverityCritical,
		Action:           contracts.ActionBlock,
		FailureClass:     contracts.PromptInjection,
		FiredSignals:     []contracts.FiredSignal{contracts.NewFiredSignal("regex_strong", 0.95, "injection pattern")},
		Reason:           "Prompt injection attempt detected",
		Confidence:       0.95,
		PolicyVersion:    "1.0.0",
		Timestamp:        time.Now().UTC(),
		TierUsed:         1,
		Method:           contracts.MethodRegexStrong,
		ProcessingTimeMS: 1.2,
	}
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, blockVerdict("v-1"), "hash-1"))

	allow := contracts.NewAllow("1.0.0")
	allow.TierUsed = 1
	allow.Method = contracts.MethodRegexAnti
	require.NoError(t, s.Append(ctx, allow, "hash-2"))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Most recent first.
	assert.Equal(t, allow.VerdictID, recs[0].VerdictID)
	assert.Equal(t, "v-1", recs[1].VerdictID)
	assert.Equal(t, "block", recs[1].Action)
	assert.Equal(t, "prompt_injection", recs[1].FailureClass)
	assert.Equal(t, "hash-1", recs[1].TextHash)
}

func TestAppendPersistsFiredSignals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, blockVerdict("v-sig"), "h"))

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM fired_signals WHERE verdict_id = ?", "v-sig").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, blockVerdict("v-a"), "h1"))
	require.NoError(t, s.Append(ctx, blockVerdict("v-b"), "h2"))

	allow := contracts.NewAllow("1.0.0")
	allow.TierUsed = 2
	allow.Method = contracts.MethodSemanticClean
	require.NoError(t, s.Append(ctx, allow, "h3"))

	sum, err := s.Summary(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.ByAction["block"])
	assert.Equal(t, 1, sum.ByAction["allow"])
	assert.Equal(t, 2, sum.ByFailureClass["prompt_injection"])
	assert.Equal(t, 2, sum.ByTier[1])
	assert.Equal(t, 1, sum.ByTier[2])
}

func TestSummaryRespectsSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := blockVerdict("v-old")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Append(ctx, old, "h"))
	require.NoError(t, s.Append(ctx, blockVerdict("v-new"), "h"))

	sum, err := s.Summary(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
}

func TestAppendDuplicateIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, blockVerdict("dup"), "h"))
	assert.Error(t, s.Append(ctx, blockVerdict("dup"), "h"))
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
