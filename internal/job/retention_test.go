package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetentionSweepRemovesExpiredJobs(t *testing.T) {
	s := newTestStore(t)
	dataDir := t.TempDir()

	j := newTestJob("JOB-AAAAAA")
	j.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(j))

	dir := filepath.Join(dataDir, "jobs", j.ID)
	require.NoError(t, os.MkdirAll(dir, 0755))

	sweeper := NewRetentionSweeper(s, dataDir, time.Hour)
	swept := sweeper.sweep()
	require.Equal(t, 1, swept)

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
	_, err = s.Get(j.ID)
	require.Error(t, err)
}

func TestRetentionSweepLeavesUnexpiredJobs(t *testing.T) {
	s := newTestStore(t)
	dataDir := t.TempDir()

	j := newTestJob("JOB-AAAAAA")
	j.ExpiresAt = time.Now().Add(time.Hour)
	require.NoError(t, s.Insert(j))

	sweeper := NewRetentionSweeper(s, dataDir, time.Hour)
	require.Equal(t, 0, sweeper.sweep())

	_, err := s.Get(j.ID)
	require.NoError(t, err)
}

func TestRetentionSweepNowMatchesSweep(t *testing.T) {
	s := newTestStore(t)
	dataDir := t.TempDir()

	j := newTestJob("JOB-AAAAAA")
	j.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(j))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "jobs", j.ID), 0755))

	sweeper := NewRetentionSweeper(s, dataDir, time.Hour)
	require.Equal(t, 1, sweeper.SweepNow())
	require.Equal(t, 0, sweeper.SweepNow())
}

func TestRetentionSweepCountsJobWithMissingDirectory(t *testing.T) {
	s := newTestStore(t)
	dataDir := t.TempDir()

	j1 := newTestJob("JOB-AAAAAA")
	j1.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(j1))
	// No on-disk directory for j1: os.RemoveAll on a missing path is a
	// no-op success, so this still counts as swept.

	j2 := newTestJob("JOB-BBBBBB")
	j2.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Insert(j2))
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "jobs", j2.ID), 0755))

	sweeper := NewRetentionSweeper(s, dataDir, time.Hour)
	require.Equal(t, 2, sweeper.sweep())
}
