package steering

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Noofbiz/steerclone/datasets"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	m, err := NewModel(Config{BatchSize: 8, Epochs: 1, Seed: 11}, SmallArchitecture(), SmallInputShape)
	require.NoError(t, err)
	ds := syntheticDataset(t, 20)
	_, err = m.Fit(ds)
	require.NoError(t, err)

	images, _, err := ds.Batch([]int{0, 3, 5, 7, 19})
	require.NoError(t, err)
	before, err := m.Predict(images)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", DefaultArtifactPath)
	require.NoError(t, m.Save(path))

	loaded, err := Load(path, Config{})
	require.NoError(t, err)
	assert.Equal(t, m.Layers(), loaded.Layers())
	assert.Equal(t, m.InputShape(), loaded.InputShape())

	after, err := loaded.Predict(images)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.InDelta(t, before[i], after[i], 1e-5, "prediction %d", i)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveOverwrites(t *testing.T) {
	m := newSmallModel(t)
	_, err := m.Predict([]datasets.Image{syntheticFrame(16, 32, 0.1, 1)})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.gob.xz")
	require.NoError(t, os.WriteFile(path, []byte("previous artifact"), 0o644))
	require.NoError(t, m.Save(path))

	_, err = Load(path, Config{})
	require.NoError(t, err)
}

func TestSaveFailureIsPersistenceError(t *testing.T) {
	m := newSmallModel(t)
	_, err := m.Predict([]datasets.Image{syntheticFrame(16, 32, 0, 2)})
	require.NoError(t, err)

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err = m.Save(filepath.Join(blocker, "model.gob.xz"))
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "create directory", perr.Op)
}

func TestSaveUninitializedModel(t *testing.T) {
	err := newSmallModel(t).Save(filepath.Join(t.TempDir(), "model.gob.xz"))
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr), "got %v", err)
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob.xz")
	require.NoError(t, os.WriteFile(path, []byte("definitely not xz"), 0o644))

	_, err := Load(path, Config{})
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)

	_, err = Load(filepath.Join(dir, "missing"), Config{})
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "open", perr.Op)
}
