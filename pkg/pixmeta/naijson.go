package pixmeta

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// NAIExtractor parses NovelAI-style metadata: a JSON parameter object, often
// base64-encoded, carried in the image comment field.
type NAIExtractor struct{}

// naiFieldMap maps NovelAI parameter keys to canonical fields, in lookup
// order: when two vendor keys share a slot ("input" vs "prompt", "scale" vs
// "cfg_scale") the earlier entry wins. Keys not listed here land in the
// extra bag untouched.
var naiFieldMap = []struct{ key, canon string }{
	{"steps", "steps"},
	{"scale", "cfg_scale"},
	{"cfg_scale", "cfg_scale"},
	{"seed", "seed"},
	{"sampler", "sampler"},
	{"scheduler", "scheduler"},
	{"width", "width"},
	{"height", "height"},
	{"uc", "negative_prompt"},
	{"input", "positive_prompt"},
	{"prompt", "positive_prompt"},
	{"model", "model_name"},
}

// naiExtraKeys are NovelAI keys worth keeping without a canonical slot.
var naiExtraKeys = map[string]string{
	"strength":     "denoising_strength",
	"noise":        "noise",
	"sm":           "sm",
	"sm_dyn":       "sm_dyn",
	"request_type": "request_type",
	"qualifiers":   "qualifiers",
}

func (e *NAIExtractor) Name() string { return "nai-json" }

func (e *NAIExtractor) comment(b *RawMetadataBlob) string {
	return b.Field("Comment", "comment")
}

func (e *NAIExtractor) Detect(b *RawMetadataBlob) bool {
	for _, key := range []string{"Software", "software", "Source", "Title", "title"} {
		v := strings.ToLower(b.Field(key))
		if strings.Contains(v, "novelai") || strings.Contains(v, "nai diffusion") {
			return true
		}
	}

	data, ok := e.decodeComment(b)
	if !ok {
		return false
	}
	// A bare JSON comment is only claimed when it looks like generation
	// parameters; anything ambiguous is left for other extractors.
	for _, k := range []string{"steps", "scale", "sampler", "uc"} {
		if _, ok := data[k]; ok {
			return true
		}
	}
	return false
}

// decodeComment decodes the comment field as base64-wrapped JSON, falling
// back to plain JSON. Returns false on any decode failure.
func (e *NAIExtractor) decodeComment(b *RawMetadataBlob) (map[string]any, bool) {
	raw := strings.TrimSpace(e.comment(b))
	if raw == "" {
		return nil, false
	}

	payload := []byte(raw)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		payload = decoded
	}

	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, false
	}
	return data, true
}

// Parse maps the decoded parameter object onto canonical fields. Any decode
// failure yields an empty FieldMap, never an error.
func (e *NAIExtractor) Parse(b *RawMetadataBlob) *FieldMap {
	fm := &FieldMap{}
	data, ok := e.decodeComment(b)
	if !ok {
		return fm
	}

	for _, f := range naiFieldMap {
		v, present := data[f.key]
		if !present {
			continue
		}
		switch f.canon {
		case "steps":
			if n, ok := asInt(v); ok {
				fm.Steps = n
			}
		case "cfg_scale":
			if f, ok := asFloat(v); ok && fm.CFGScale == 0 {
				fm.CFGScale = f
			}
		case "seed":
			if n, ok := asInt64(v); ok {
				fm.SetSeed(n)
			}
		case "sampler":
			if s, ok := asString(v); ok {
				fm.Sampler = s
			}
		case "scheduler":
			if s, ok := asString(v); ok {
				fm.Scheduler = s
			}
		case "width":
			if n, ok := asInt(v); ok {
				fm.Width = n
			}
		case "height":
			if n, ok := asInt(v); ok {
				fm.Height = n
			}
		case "negative_prompt":
			if s, ok := asString(v); ok {
				fm.NegativePrompt = s
			}
		case "positive_prompt":
			if s, ok := asString(v); ok && fm.PositivePrompt == "" {
				fm.PositivePrompt = s
			}
		case "model_name":
			if s, ok := asString(v); ok {
				fm.ModelName = s
			}
		}
	}

	for key, name := range naiExtraKeys {
		if v, present := data[key]; present {
			fm.SetExtra(name, v)
		}
	}

	if sw := b.Field("Software", "software"); sw != "" {
		fm.SetExtra("software", sw)
	}

	return fm
}
