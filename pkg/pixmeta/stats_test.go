package pixmeta

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() *FieldMap {
	fm := &FieldMap{
		ModelName:      "dreamshaper_8.safetensors",
		PositivePrompt: "a castle at sunset, dramatic lighting",
		NegativePrompt: "blurry, low quality",
	}
	fm.SetSeed(42)
	return fm
}

func TestRecordImageAtMostOnce(t *testing.T) {
	s := NewStore()
	fm := sampleFields()

	require.True(t, s.RecordImage("fp-1", fm))
	require.False(t, s.RecordImage("fp-1", fm))
	require.False(t, s.RecordImage("fp-1", fm))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.TotalImages)
	assert.Equal(t, 1, snap.Models["dreamshaper 8"])
	assert.Equal(t, 1, snap.PositiveTags["a castle at sunset"])
	assert.Equal(t, 1, snap.PositiveTags["dramatic lighting"])
	assert.Equal(t, 1, snap.NegativeTags["blurry"])
	assert.Equal(t, 1, snap.NegativeTags["low_quality"])
}

func TestRecordImageModelAlias(t *testing.T) {
	s := NewStore()
	s.SetModelAliases(map[string]string{"dreamshaper_8.safetensors": "DreamShaper"})

	require.True(t, s.RecordImage("fp-1", sampleFields()))
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Models["DreamShaper"])
	assert.Zero(t, snap.Models["dreamshaper 8"])
}

func TestFingerprintStability(t *testing.T) {
	mtime := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fm := sampleFields()

	a := Fingerprint("/corpus/a.png", 1234, mtime, fm)
	b := Fingerprint("/corpus/a.png", 1234, mtime, fm)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Fingerprint("/corpus/b.png", 1234, mtime, fm))
	assert.NotEqual(t, a, Fingerprint("/corpus/a.png", 1235, mtime, fm))
	assert.NotEqual(t, a, Fingerprint("/corpus/a.png", 1234, mtime.Add(time.Second), fm))

	other := sampleFields()
	other.SetSeed(43)
	assert.NotEqual(t, a, Fingerprint("/corpus/a.png", 1234, mtime, other))
}

// A zero seed and an absent seed must fingerprint differently.
func TestFingerprintZeroSeed(t *testing.T) {
	mtime := time.Now()
	withZero := &FieldMap{PositivePrompt: "x"}
	withZero.SetSeed(0)
	without := &FieldMap{PositivePrompt: "x"}

	assert.NotEqual(t,
		Fingerprint("/p", 1, mtime, withZero),
		Fingerprint("/p", 1, mtime, without))
}

func TestPersistLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")

	s := NewStore()
	require.True(t, s.RecordImage("fp-1", sampleFields()))
	require.True(t, s.RecordImage("fp-2", sampleFields()))
	require.NoError(t, s.Persist(path))

	loaded := NewStore()
	require.NoError(t, loaded.Load(path))

	// Dedup state survives the round trip.
	assert.False(t, loaded.RecordImage("fp-1", sampleFields()))
	assert.True(t, loaded.RecordImage("fp-3", sampleFields()))

	snap := loaded.Snapshot()
	assert.Equal(t, 3, snap.TotalImages)
	assert.Equal(t, 3, snap.PositiveTags["dramatic lighting"])
}

func TestPersistSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s := NewStore()
	require.True(t, s.RecordImage("fp-1", sampleFields()))
	require.NoError(t, s.Persist(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"total_images_processed", "models", "positive_tags", "negative_tags",
		"last_update", "processed_images",
	} {
		assert.Contains(t, raw, key)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Load(filepath.Join(t.TempDir(), "nope.json")))
	assert.Equal(t, 0, s.Snapshot().TotalImages)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s := NewStore()
	require.NoError(t, s.Load(path))
	assert.Equal(t, 0, s.Snapshot().TotalImages)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	s := NewStore()
	assert.Error(t, s.Load(path))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	require.True(t, s.RecordImage("fp-1", sampleFields()))

	snap := s.Snapshot()
	snap.PositiveTags["dramatic lighting"] = 999

	assert.Equal(t, 1, s.Snapshot().PositiveTags["dramatic lighting"])
}

func TestTopTagsOrdering(t *testing.T) {
	s := NewStore()
	for i, prompt := range []string{
		"cat, dog, owl",
		"cat, dog",
		"cat",
	} {
		require.True(t, s.RecordImage(string(rune('a'+i)), &FieldMap{PositivePrompt: prompt}))
	}

	top := s.TopTags(Positive, 2)
	require.Len(t, top, 2)
	assert.Equal(t, TagCount{Tag: "cat", Count: 3}, top[0])
	assert.Equal(t, TagCount{Tag: "dog", Count: 2}, top[1])

	all := s.TopTags(Positive, 0)
	assert.Len(t, all, 3)
}

func TestReset(t *testing.T) {
	s := NewStore()
	require.True(t, s.RecordImage("fp-1", sampleFields()))
	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.TotalImages)
	assert.Empty(t, snap.Models)
	assert.True(t, s.RecordImage("fp-1", sampleFields()))
}

func TestExportCSV(t *testing.T) {
	s := NewStore()
	require.True(t, s.RecordImage("fp-1", sampleFields()))

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(&buf))

	out := buf.String()
	assert.Contains(t, out, "Total Images Processed,1")
	assert.Contains(t, out, "dreamshaper 8,1")
	assert.Contains(t, out, "blurry,1")
}
