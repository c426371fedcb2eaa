package pixmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Rule merges a set of source tags into one target tag within a category.
type Rule struct {
	Category Category
	Target   string
	Sources  []string
}

// RuleSet is an ordered list of consolidation rules. Order matters: a tag
// that is a source in one rule and the target of an earlier rule is merged
// using its post-earlier-rule count.
type RuleSet struct {
	rules []Rule
}

// Add appends a rule, preserving application order.
func (rs *RuleSet) Add(category Category, target string, sources ...string) {
	rs.rules = append(rs.rules, Rule{Category: category, Target: target, Sources: sources})
}

// Rules returns the rules in application order.
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Len reports the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// ruleSetJSON is the on-disk shape: category → target → sources.
type ruleSetJSON map[Category]map[string][]string

// MarshalJSON writes the category-keyed rule file format.
func (rs *RuleSet) MarshalJSON() ([]byte, error) {
	out := ruleSetJSON{Positive: {}, Negative: {}}
	for _, r := range rs.rules {
		out[r.Category][r.Target] = append(out[r.Category][r.Target], r.Sources...)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the rule file format. The JSON object carries no
// order, so rules are loaded category-by-category in sorted target order to
// keep application deterministic.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var raw ruleSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rs.rules = nil
	for _, category := range []Category{Positive, Negative} {
		targets := make([]string, 0, len(raw[category]))
		for t := range raw[category] {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			rs.Add(category, t, raw[category][t]...)
		}
	}
	return nil
}

// Blacklist names tags to delete outright; their counts are discarded, not
// transferred.
type Blacklist struct {
	Positive []string `json:"positive"`
	Negative []string `json:"negative"`
}

// Tags returns the blacklist entries for a category.
func (b *Blacklist) Tags(category Category) []string {
	if b == nil {
		return nil
	}
	if category == Negative {
		return b.Negative
	}
	return b.Positive
}

// Empty reports whether the blacklist names no tags at all.
func (b *Blacklist) Empty() bool {
	return b == nil || (len(b.Positive) == 0 && len(b.Negative) == 0)
}

// negativeMarkers are lexical markers of negative-quality tags. Any positive
// tag matching one of these was almost certainly fed to a negative prompt
// and got misfiled by a lossy extractor.
var negativeMarkers = []string{
	"blurry", "blur", "bad anatomy", "low quality", "worst quality",
	"bad quality", "normal quality", "deformed", "disfigured", "cropped",
	"watermark", "signature", "jpeg artifacts", "artifacts",
	"compression artifacts", "bad proportions", "gross proportions",
	"mutation", "mutated", "malformed", "duplicate", "morbid", "mutilated",
	"extra limbs", "missing limbs", "extra limb", "missing limb",
	"floating limbs", "bad hands", "extra fingers", "missing fingers",
	"fused fingers", "poorly drawn", "bad art", "lowres", "low res",
	"pixelated", "fuzzy", "unclear", "grainy", "oversaturated",
	"overexposed", "underexposed", "bad lighting", "bad face", "ugly",
	"plastic skin", "distorted",
}

// ConsolidateOptions selects the optional passes of a consolidation run.
type ConsolidateOptions struct {
	// FixMisclassified enables the positive→negative correction pass.
	FixMisclassified bool
	// ExtraMarkers extends the built-in negative-quality marker list.
	ExtraMarkers []string
}

// Change records one tag-level effect of a consolidation run.
type Change struct {
	Category Category `json:"category"`
	Tag      string   `json:"tag"`
	Target   string   `json:"target,omitempty"`
	Count    int      `json:"count"`
}

// Report summarizes what a consolidation run did (or, in preview, would do).
type Report struct {
	Merged       []Change `json:"merged,omitempty"`
	Blacklisted  []Change `json:"blacklisted,omitempty"`
	Reclassified []Change `json:"reclassified,omitempty"`
}

// Empty reports whether the run changed nothing.
func (r *Report) Empty() bool {
	return len(r.Merged) == 0 && len(r.Blacklisted) == 0 && len(r.Reclassified) == 0
}

// String renders the operator-facing preview text.
func (r *Report) String() string {
	if r.Empty() {
		return "no changes"
	}
	var sb strings.Builder
	for _, c := range r.Merged {
		fmt.Fprintf(&sb, "merge  [%s] %s -> %s (%d)\n", c.Category, c.Tag, c.Target, c.Count)
	}
	for _, c := range r.Blacklisted {
		fmt.Fprintf(&sb, "delete [%s] %s (%d)\n", c.Category, c.Tag, c.Count)
	}
	for _, c := range r.Reclassified {
		fmt.Fprintf(&sb, "move   [positive -> negative] %s (%d)\n", c.Tag, c.Count)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// PreviewConsolidation evaluates rules, blacklists, and the correction pass
// against a copy of the current counts and reports what applying them would
// do. It shares the evaluation path with ApplyConsolidation, so the preview
// is guaranteed to match a subsequent apply.
func (s *Store) PreviewConsolidation(rs *RuleSet, bl *Blacklist, opts ConsolidateOptions) *Report {
	s.mu.Lock()
	pos := copyCounts(s.positiveTags)
	neg := copyCounts(s.negativeTags)
	s.mu.Unlock()
	return consolidate(pos, neg, rs, bl, opts)
}

// ApplyConsolidation mutates the live counters. Merges are sum-preserving;
// only blacklist deletion discards counts.
func (s *Store) ApplyConsolidation(rs *RuleSet, bl *Blacklist, opts ConsolidateOptions) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := consolidate(s.positiveTags, s.negativeTags, rs, bl, opts)
	if !report.Empty() {
		s.lastUpdate = time.Now()
	}
	return report
}

// consolidate is the single evaluation path for preview and apply. It
// mutates the maps it is given.
func consolidate(pos, neg map[string]int, rs *RuleSet, bl *Blacklist, opts ConsolidateOptions) *Report {
	report := &Report{}
	byCat := func(c Category) map[string]int {
		if c == Negative {
			return neg
		}
		return pos
	}

	if rs != nil {
		for _, rule := range rs.Rules() {
			counts := byCat(rule.Category)
			total := 0
			for _, src := range rule.Sources {
				if src == rule.Target {
					// Self-merge is a no-op, not an error.
					continue
				}
				c, ok := counts[src]
				if !ok {
					continue
				}
				delete(counts, src)
				total += c
				report.Merged = append(report.Merged, Change{
					Category: rule.Category, Tag: src, Target: rule.Target, Count: c,
				})
			}
			if total > 0 {
				counts[rule.Target] += total
			}
		}
	}

	for _, category := range []Category{Positive, Negative} {
		counts := byCat(category)
		for _, tag := range bl.Tags(category) {
			c, ok := counts[tag]
			if !ok {
				continue
			}
			delete(counts, tag)
			report.Blacklisted = append(report.Blacklisted, Change{
				Category: category, Tag: tag, Count: c,
			})
		}
	}

	if opts.FixMisclassified {
		fixMisclassified(pos, neg, opts.ExtraMarkers, report)
	}

	return report
}

// fixMisclassified moves marker-matching tags from positive to negative with
// a sum-preserving merge. The pass is one-directional: nothing ever moves
// negative → positive.
func fixMisclassified(pos, neg map[string]int, extraMarkers []string, report *Report) {
	markers := negativeMarkers
	if len(extraMarkers) > 0 {
		markers = append(append([]string{}, negativeMarkers...), extraMarkers...)
	}

	tags := make([]string, 0, len(pos))
	for tag := range pos {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		if !matchesMarker(tag, markers) {
			continue
		}
		c := pos[tag]
		delete(pos, tag)
		neg[tag] += c
		report.Reclassified = append(report.Reclassified, Change{
			Category: Positive, Tag: tag, Count: c,
		})
		klog.V(1).Infof("moved %q (%d) from positive to negative", tag, c)
	}
}

// matchesMarker checks a tag against the marker list, insensitive to the
// space/underscore spelling split.
func matchesMarker(tag string, markers []string) bool {
	spaced := strings.ReplaceAll(strings.ToLower(tag), "_", " ")
	for _, m := range markers {
		if strings.Contains(spaced, strings.ReplaceAll(m, "_", " ")) {
			return true
		}
	}
	return false
}

// rulesFile is the combined export format: rules and blacklists travel
// together, independent of any statistics snapshot.
type rulesFile struct {
	ConsolidationRules *RuleSet   `json:"consolidation_rules"`
	Blacklists         *Blacklist `json:"blacklists"`
	ExportedAt         string     `json:"exported_at,omitempty"`
}

// SaveRules writes a rule set to its own JSON file.
func SaveRules(path string, rs *RuleSet) error {
	return writeJSON(path, rs)
}

// LoadRules reads a rule file; a missing file yields an empty rule set.
func LoadRules(path string) (*RuleSet, error) {
	rs := &RuleSet{}
	err := readJSON(path, rs)
	return rs, err
}

// SaveBlacklist writes a blacklist to its own JSON file.
func SaveBlacklist(path string, bl *Blacklist) error {
	return writeJSON(path, bl)
}

// LoadBlacklist reads a blacklist file; a missing file yields an empty
// blacklist.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := &Blacklist{}
	err := readJSON(path, bl)
	return bl, err
}

// ExportRules bundles rules and blacklist into one portable file.
func ExportRules(path string, rs *RuleSet, bl *Blacklist) error {
	return writeJSON(path, &rulesFile{
		ConsolidationRules: rs,
		Blacklists:         bl,
		ExportedAt:         time.Now().UTC().Format(time.RFC3339),
	})
}

// ImportRules reads a bundle written by ExportRules.
func ImportRules(path string) (*RuleSet, *Blacklist, error) {
	var rf rulesFile
	if err := readJSON(path, &rf); err != nil {
		return nil, nil, err
	}
	if rf.ConsolidationRules == nil {
		rf.ConsolidationRules = &RuleSet{}
	}
	if rf.Blacklists == nil {
		rf.Blacklists = &Blacklist{}
	}
	return rf.ConsolidationRules, rf.Blacklists, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
