package pixmeta

import (
	"regexp"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// WebUIExtractor parses the comma-delimited "parameters" text block written
// by Stable-Diffusion-WebUI-style tools:
//
//	a castle at sunset
//	Negative prompt: blurry, low quality
//	Steps: 20, Sampler: Euler a, CFG scale: 7.5, Seed: 42, Size: 512x768, Model: foo
type WebUIExtractor struct{}

const negativeMarker = "Negative prompt:"

var (
	webuiStepsRe = regexp.MustCompile(`(?i)\bSteps:\s*([^,\n]+)`)
	webuiCFGRe   = regexp.MustCompile(`(?i)\bCFG\s*scale:\s*([^,\n]+)`)
	webuiSeedRe  = regexp.MustCompile(`(?i)\bSeed:\s*([^,\n]+)`)
	webuiSizeRe  = regexp.MustCompile(`(?i)\bSize:\s*(\d+)\s*x\s*(\d+)`)

	// webuiParamLineRe recognizes a parameter block line; anything else in
	// the text is prompt content.
	webuiParamLineRe = regexp.MustCompile(`(?i)\b(steps|sampler|schedule type|scheduler|cfg scale|seed|size|model hash|model|base model|vae|clip skip|denoising strength|ensd|version|method)\s*:`)
)

// webuiStringFields maps vendor keys to canonical string fields. This table
// is the source of truth for WebUI-family field normalization.
var webuiStringFields = []struct {
	canon string
	re    *regexp.Regexp
}{
	{"sampler", regexp.MustCompile(`(?i)\bSampler:\s*([^,\n]+)`)},
	{"scheduler", regexp.MustCompile(`(?i)\bSchedule(?:r| type):\s*([^,\n]+)`)},
	{"model_name", regexp.MustCompile(`(?i)\bModel:\s*([^,\n]+)`)},
	{"base_model", regexp.MustCompile(`(?i)\bBase\s*model:\s*([^,\n]+)`)},
	{"model_hash", regexp.MustCompile(`(?i)\bModel\s*hash:\s*([^,\n]+)`)},
}

// webuiExtraFields have no canonical slot and land in the extra bag.
var webuiExtraFields = []struct {
	key string
	re  *regexp.Regexp
}{
	{"vae", regexp.MustCompile(`(?i)\bVAE:\s*([^,\n]+)`)},
	{"clip_skip", regexp.MustCompile(`(?i)\bClip\s*skip:\s*([^,\n]+)`)},
	{"denoising_strength", regexp.MustCompile(`(?i)\bDenoising\s*strength:\s*([^,\n]+)`)},
	{"ensd", regexp.MustCompile(`(?i)\bENSD:\s*([^,\n]+)`)},
	{"version", regexp.MustCompile(`(?i)\bVersion:\s*([^,\n]+)`)},
	{"method", regexp.MustCompile(`(?i)\bMethod:\s*([^,\n]+)`)},
	{"controlnet_model", regexp.MustCompile(`(?i)\bControlNet\s*model:\s*([^,\n]+)`)},
	{"controlnet_weight", regexp.MustCompile(`(?i)\bControlNet\s*weight:\s*([^,\n]+)`)},
}

var webuiLoraRe = regexp.MustCompile(`(?i)\bLoRA:\s*([^,\n]+)`)

func (e *WebUIExtractor) Name() string { return "webui" }

func (e *WebUIExtractor) paramText(b *RawMetadataBlob) string {
	return b.Field("Parameters", "parameters")
}

func (e *WebUIExtractor) Detect(b *RawMetadataBlob) bool {
	text := e.paramText(b)
	if text == "" {
		return false
	}
	return strings.Contains(text, negativeMarker) ||
		strings.Contains(text, "Steps:") ||
		strings.Contains(text, "Seed:") ||
		strings.Contains(text, "CFG scale:")
}

func (e *WebUIExtractor) Parse(b *RawMetadataBlob) *FieldMap {
	fm := &FieldMap{}
	text := e.paramText(b)
	if text == "" {
		return fm
	}

	e.splitPrompts(text, fm)

	// Typed fields keep the raw string in the extra bag when coercion
	// fails; a matched value is never dropped.
	if raw, ok := firstMatch(webuiStepsRe, text); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			fm.Steps = v
		} else {
			keepRaw(fm, "steps", raw)
		}
	}
	if raw, ok := firstMatch(webuiCFGRe, text); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			fm.CFGScale = v
		} else {
			keepRaw(fm, "cfg_scale", raw)
		}
	}
	if raw, ok := firstMatch(webuiSeedRe, text); ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fm.SetSeed(v)
		} else {
			keepRaw(fm, "seed", raw)
		}
	}
	if m := webuiSizeRe.FindStringSubmatch(text); m != nil {
		fm.Width, _ = strconv.Atoi(m[1])
		fm.Height, _ = strconv.Atoi(m[2])
	}

	for _, f := range webuiStringFields {
		raw, ok := firstMatch(f.re, text)
		if !ok {
			continue
		}
		switch f.canon {
		case "sampler":
			fm.Sampler = raw
		case "scheduler":
			fm.Scheduler = raw
		case "model_name":
			fm.ModelName = raw
		case "base_model":
			fm.BaseModel = raw
		case "model_hash":
			fm.ModelHash = raw
		}
	}

	for _, f := range webuiExtraFields {
		if raw, ok := firstMatch(f.re, text); ok {
			fm.SetExtra(f.key, raw)
		}
	}

	if ms := webuiLoraRe.FindAllStringSubmatch(text, -1); ms != nil {
		loras := make([]string, 0, len(ms))
		for _, m := range ms {
			loras = append(loras, strings.TrimSpace(m[1]))
		}
		fm.SetExtra("lora_models", loras)
	}

	return fm
}

// splitPrompts separates prompt content from the parameter block. The
// "Negative prompt:" line carries the negative segment; every other
// non-parameter line is positive prompt text.
func (e *WebUIExtractor) splitPrompts(text string, fm *FieldMap) {
	var pos []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, negativeMarker) {
			fm.NegativePrompt = strings.Trim(strings.TrimPrefix(line, negativeMarker), " ,")
			continue
		}
		if webuiParamLineRe.MatchString(line) {
			continue
		}
		pos = append(pos, line)
	}
	fm.PositivePrompt = strings.Trim(strings.Join(pos, "\n"), " ,\n")
}

func firstMatch(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func keepRaw(fm *FieldMap, name, raw string) {
	klog.V(1).Infof("field %s: %q is not numeric, keeping raw value", name, raw)
	fm.SetExtra(name, raw)
}
