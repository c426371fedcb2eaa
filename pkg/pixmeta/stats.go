package pixmeta

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Category selects which tag counter an operation applies to.
type Category string

const (
	Positive Category = "positive"
	Negative Category = "negative"
)

// Counts is the point-in-time view of the store, mirroring the on-disk
// schema.
type Counts struct {
	TotalImages  int            `json:"total_images_processed"`
	Models       map[string]int `json:"models"`
	PositiveTags map[string]int `json:"positive_tags"`
	NegativeTags map[string]int `json:"negative_tags"`
	LastUpdate   string         `json:"last_update"`

	// ProcessedImages carries the fingerprint index so dedup survives
	// across runs.
	ProcessedImages []string `json:"processed_images,omitempty"`
}

// TagCount is one row of a top-N query.
type TagCount struct {
	Tag   string
	Count int
}

// Store accumulates model and tag counts over a corpus. It is the single
// piece of shared mutable state in the pipeline; every operation takes the
// lock, so parallel extraction workers can feed it directly.
type Store struct {
	mu sync.Mutex

	seen         map[string]struct{}
	models       map[string]int
	positiveTags map[string]int
	negativeTags map[string]int
	total        int
	lastUpdate   time.Time

	// modelAliases are operator overrides applied before normalization.
	modelAliases map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		seen:         map[string]struct{}{},
		models:       map[string]int{},
		positiveTags: map[string]int{},
		negativeTags: map[string]int{},
	}
}

// SetModelAliases installs custom raw-name → display-name overrides.
func (s *Store) SetModelAliases(m map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelAliases = m
}

// Fingerprint builds the stable identity hash for a source image from file
// identity plus a content hash of its extracted fields. The same physical
// file yields the same fingerprint until its content changes.
func Fingerprint(path string, size int64, mtime time.Time, fm *FieldMap) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|", path, size, mtime.Unix())
	if fm != nil {
		seed := ""
		if fm.SeedSet {
			seed = strconv.FormatInt(fm.Seed, 10)
		}
		fmt.Fprintf(h, "%s|%s|%s|%s", fm.ModelName, fm.ModelHash, seed, fm.PositivePrompt)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// RecordImage counts one image's fields into the statistics. It returns
// false without touching any counter when the fingerprint has been seen
// before, guaranteeing at-most-once counting per image.
func (s *Store) RecordImage(fingerprint string, fm *FieldMap) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[fingerprint]; dup {
		return false
	}
	s.seen[fingerprint] = struct{}{}
	s.total++

	if fm == nil {
		s.lastUpdate = time.Now()
		return true
	}

	if fm.ModelName != "" {
		s.incrementModel(fm.ModelName)
	}
	for _, tag := range ExtractTags(fm.PositivePrompt) {
		s.positiveTags[tag]++
	}
	for _, tag := range ExtractTags(fm.NegativePrompt) {
		s.negativeTags[tag]++
	}

	s.lastUpdate = time.Now()
	return true
}

// incrementModel applies alias overrides then normalization. Callers hold
// the lock.
func (s *Store) incrementModel(raw string) {
	if alias, ok := s.modelAliases[raw]; ok {
		s.models[alias]++
		return
	}
	s.models[NormalizeModelName(raw)]++
}

// Snapshot returns a consistent deep copy of all counters.
func (s *Store) Snapshot() *Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *Counts {
	c := &Counts{
		TotalImages:  s.total,
		Models:       copyCounts(s.models),
		PositiveTags: copyCounts(s.positiveTags),
		NegativeTags: copyCounts(s.negativeTags),
	}
	if !s.lastUpdate.IsZero() {
		c.LastUpdate = s.lastUpdate.UTC().Format(time.RFC3339)
	}
	c.ProcessedImages = make([]string, 0, len(s.seen))
	for fp := range s.seen {
		c.ProcessedImages = append(c.ProcessedImages, fp)
	}
	sort.Strings(c.ProcessedImages)
	return c
}

// Persist writes the full store state to path, overwriting any previous
// snapshot. A write failure leaves the in-memory store untouched and valid.
func (s *Store) Persist(path string) error {
	snap := s.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	klog.V(1).Infof("persisted statistics to %s (%d images)", path, snap.TotalImages)
	return nil
}

// Load replaces the store state with the snapshot at path. A missing or
// zero-length file initializes an empty store; that is not an error.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		klog.V(1).Infof("no statistics file at %s, starting empty", path)
		s.Reset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read statistics: %w", err)
	}
	if len(data) == 0 {
		s.Reset()
		return nil
	}

	var snap Counts
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse statistics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = snap.TotalImages
	s.models = orEmpty(snap.Models)
	s.positiveTags = orEmpty(snap.PositiveTags)
	s.negativeTags = orEmpty(snap.NegativeTags)
	s.seen = make(map[string]struct{}, len(snap.ProcessedImages))
	for _, fp := range snap.ProcessedImages {
		s.seen[fp] = struct{}{}
	}
	s.lastUpdate = time.Time{}
	if snap.LastUpdate != "" {
		if t, err := time.Parse(time.RFC3339, snap.LastUpdate); err == nil {
			s.lastUpdate = t
		}
	}
	return nil
}

// Reset discards all statistics. Explicit by design.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = map[string]struct{}{}
	s.models = map[string]int{}
	s.positiveTags = map[string]int{}
	s.negativeTags = map[string]int{}
	s.total = 0
	s.lastUpdate = time.Time{}
}

// TopModels returns the n most counted models, all of them for n <= 0.
func (s *Store) TopModels(n int) []TagCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topN(s.models, n)
}

// TopTags returns the n most counted tags in a category, all for n <= 0.
func (s *Store) TopTags(category Category, n int) []TagCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return topN(s.tagsFor(category), n)
}

// tagsFor picks the live counter map for a category. Callers hold the lock.
func (s *Store) tagsFor(category Category) map[string]int {
	if category == Negative {
		return s.negativeTags
	}
	return s.positiveTags
}

// ExportCSV writes a summary plus the top models and tags as CSV.
func (s *Store) ExportCSV(w io.Writer) error {
	snap := s.Snapshot()
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"Summary"},
		{"Total Images Processed", strconv.Itoa(snap.TotalImages)},
		{"Unique Models", strconv.Itoa(len(snap.Models))},
		{"Unique Positive Tags", strconv.Itoa(len(snap.PositiveTags))},
		{"Unique Negative Tags", strconv.Itoa(len(snap.NegativeTags))},
		{},
	}
	for _, section := range []struct {
		title  string
		counts map[string]int
	}{
		{"Models", snap.Models},
		{"Positive Tags", snap.PositiveTags},
		{"Negative Tags", snap.NegativeTags},
	} {
		rows = append(rows, []string{section.title}, []string{"Name", "Count"})
		for _, tc := range topN(section.counts, 0) {
			rows = append(rows, []string{tc.Tag, strconv.Itoa(tc.Count)})
		}
		rows = append(rows, []string{})
	}

	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func topN(counts map[string]int, n int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, c := range counts {
		out = append(out, TagCount{Tag: tag, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func orEmpty(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
