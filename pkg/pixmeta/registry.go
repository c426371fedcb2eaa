package pixmeta

import (
	"k8s.io/klog/v2"
)

// Extractor is the plugin contract for one tool family. Both methods must be
// total with respect to malformed input: Detect returns false on any
// ambiguity and Parse degrades to an empty FieldMap rather than failing.
type Extractor interface {
	Name() string
	Detect(b *RawMetadataBlob) bool
	Parse(b *RawMetadataBlob) *FieldMap
}

// Registry holds all extractors in declaration order. It is built once at
// startup and append-only after that.
type Registry struct {
	extractors []Extractor
	generic    Extractor
}

// NewRegistry returns the standard registry: the known tool families in
// priority order, plus the generic fallback.
func NewRegistry() *Registry {
	return &Registry{
		extractors: []Extractor{
			&WebUIExtractor{},
			&NodeGraphExtractor{},
			&NAIExtractor{},
		},
		generic: &GenericExtractor{},
	}
}

// Register appends an extractor ahead of the generic fallback.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Resolve runs detection over every extractor and returns the canonical
// fields from the richest parse, along with the winning format name.
//
// Format signatures can be ambiguous (a bare JSON blob may superficially
// match more than one family), so when several extractors claim the blob,
// each candidate is parsed and the result with the most canonical fields
// wins. Ties go to the earliest registration. If nothing claims the blob,
// the generic fallback parses it.
func (r *Registry) Resolve(b *RawMetadataBlob) (*FieldMap, string) {
	var best *FieldMap
	bestName := ""
	bestCount := -1

	for _, e := range r.extractors {
		if !r.safeDetect(e, b) {
			continue
		}
		fm := r.safeParse(e, b)
		n := fm.FieldCount()
		klog.V(2).Infof("%s claimed blob, %d fields", e.Name(), n)
		if n > bestCount {
			best, bestName, bestCount = fm, e.Name(), n
		}
	}

	if best == nil {
		best = r.safeParse(r.generic, b)
		bestName = r.generic.Name()
	}

	best.Source = bestName
	return best, bestName
}

// safeDetect shields the dispatcher from a misbehaving Detect.
func (r *Registry) safeDetect(e Extractor, b *RawMetadataBlob) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			klog.Warningf("%s: detect panicked: %v", e.Name(), rec)
			ok = false
		}
	}()
	return e.Detect(b)
}

// safeParse treats a panicking or nil Parse as a zero-field result so a
// broken extractor can never abort a batch.
func (r *Registry) safeParse(e Extractor, b *RawMetadataBlob) (fm *FieldMap) {
	defer func() {
		if rec := recover(); rec != nil {
			klog.Warningf("%s: parse panicked: %v", e.Name(), rec)
			fm = &FieldMap{}
		}
	}()
	fm = e.Parse(b)
	if fm == nil {
		fm = &FieldMap{}
	}
	return fm
}
