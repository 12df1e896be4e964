package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordRun(RunRecord{
		Environment: "production", Tolerance: "moderate", Passed: false,
		Total: 3, Critical: 1, Medium: 2, Violations: 1,
	}))
	require.NoError(t, s.RecordRun(RunRecord{
		Environment: "development", Tolerance: "lenient", Passed: true, Total: 3,
	}))

	all, err := s.RecentRuns("", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, "development", all[0].Environment)
	assert.True(t, all[0].Passed)
	assert.Equal(t, "production", all[1].Environment)
	assert.Equal(t, 1, all[1].Critical)
	assert.False(t, all[1].Passed)

	prod, err := s.RecentRuns("production", 10)
	require.NoError(t, err)
	require.Len(t, prod, 1)
	assert.Equal(t, 1, prod[0].Violations)
}

func TestRecentRunsLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordRun(RunRecord{Environment: "staging", Tolerance: "moderate", Passed: true}))
	}
	runs, err := s.RecentRuns("staging", 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestBaselineSupersede(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordBaseline(BaselineRecord{
		GeneratedAt: "2026-01-01T00:00:00Z", Environment: "production", Findings: 4,
	}))
	require.NoError(t, s.RecordBaseline(BaselineRecord{
		GeneratedAt: "2026-02-01T00:00:00Z", Environment: "production", Findings: 2,
	}))

	cur, err := s.CurrentBaseline("production")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01T00:00:00Z", cur.GeneratedAt)
	assert.Equal(t, 2, cur.Findings)
	assert.False(t, cur.Superseded)

	_, err = s.CurrentBaseline("staging")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
