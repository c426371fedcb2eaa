// Package pixmeta extracts AI-image-generation parameters from tool-specific
// metadata blobs and aggregates tag and model statistics over a corpus.
package pixmeta

// Hint names the container an image metadata blob was decoded from.
type Hint string

const (
	HintTextChunk  Hint = "text-chunk"
	HintExifField  Hint = "exif-field"
	HintBase64JSON Hint = "base64-json"
	HintWorkflow   Hint = "workflow-json"
)

// RawMetadataBlob holds the already-decoded container metadata for one image,
// keyed by container field name (e.g. "Parameters", "Comment"). The caller
// owns it; extractors never mutate it.
type RawMetadataBlob struct {
	Fields map[string]string
	Hint   Hint
}

// Field returns the first non-empty value among the given container keys.
func (b *RawMetadataBlob) Field(keys ...string) string {
	if b == nil || b.Fields == nil {
		return ""
	}
	for _, k := range keys {
		if v := b.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// FieldMap is the canonical, vendor-independent field set extracted from one
// image. Every field is optional; the zero value means absent.
type FieldMap struct {
	Source string `json:"source,omitempty"`

	ModelName string `json:"model_name,omitempty"`
	BaseModel string `json:"base_model,omitempty"`
	ModelHash string `json:"model_hash,omitempty"`
	Sampler   string `json:"sampler,omitempty"`
	Scheduler string `json:"scheduler,omitempty"`

	Steps    int     `json:"steps,omitempty"`
	CFGScale float64 `json:"cfg_scale,omitempty"`
	Seed     int64   `json:"seed,omitempty"`
	SeedSet  bool    `json:"-"`

	PositivePrompt string `json:"positive_prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Extra holds format-specific fields with no canonical slot.
	Extra map[string]any `json:"extra,omitempty"`

	// LowConfidence marks records where prompt roles were guessed
	// positionally rather than resolved from graph connectivity.
	LowConfidence bool `json:"-"`
}

// SetSeed records a seed value. Seeds may exceed 32 bits and zero is a valid
// seed, so presence is tracked separately.
func (f *FieldMap) SetSeed(v int64) {
	f.Seed = v
	f.SeedSet = true
}

// SetExtra files a value under the open-ended extra bag.
func (f *FieldMap) SetExtra(key string, v any) {
	if f.Extra == nil {
		f.Extra = map[string]any{}
	}
	f.Extra[key] = v
}

// FieldCount reports how many canonical fields are populated. The dispatcher
// uses it to pick the richest parse when several extractors claim a blob.
// Extra-bag entries do not count.
func (f *FieldMap) FieldCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, s := range []string{
		f.ModelName, f.BaseModel, f.ModelHash, f.Sampler, f.Scheduler,
		f.PositivePrompt, f.NegativePrompt,
	} {
		if s != "" {
			n++
		}
	}
	if f.Steps > 0 {
		n++
	}
	if f.CFGScale > 0 {
		n++
	}
	if f.SeedSet {
		n++
	}
	if f.Width > 0 {
		n++
	}
	if f.Height > 0 {
		n++
	}
	return n
}
