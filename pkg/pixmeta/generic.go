package pixmeta

import (
	"regexp"
	"strconv"
	"strings"
)

// GenericExtractor is the fallback for unknown tools. It always detects and
// applies defensive key:value patterns plus vendor-neutral field names to
// whatever text the blob carries. It may well come up empty.
type GenericExtractor struct{}

// genericTextKeys are the container fields searched for parameter text.
var genericTextKeys = []string{
	"Parameters", "parameters", "Comment", "comment", "Description",
	"description", "ImageDescription", "UserComment", "Software", "software",
	"Artist", "artist", "Copyright", "copyright", "Title", "title",
}

// vendorSignatures map a lexical marker to the tool it betrays.
var vendorSignatures = []struct{ marker, tool string }{
	{"stable diffusion", "Stable Diffusion"},
	{"automatic1111", "Stable Diffusion"},
	{"midjourney", "Midjourney"},
	{"dall-e", "DALL-E"},
	{"dalle", "DALL-E"},
	{"novelai", "NovelAI"},
	{"leonardo", "Leonardo AI"},
	{"civitai", "CivitAI"},
	{"dreamstudio", "DreamStudio"},
	{"firefly", "Adobe Firefly"},
}

var (
	genericSeedRe      = regexp.MustCompile(`(?i)\bseed[:=]\s*(-?\d+)`)
	genericStepsRe     = regexp.MustCompile(`(?i)\b(?:sampling\s+)?steps[:=]\s*(\d+)`)
	genericCFGRe       = regexp.MustCompile(`(?i)\b(?:cfg(?:\s*scale)?|guidance\s*scale)[:=]\s*([\d.]+)`)
	genericSamplerRe   = regexp.MustCompile(`(?i)\bsampler[:=]\s*([^,\n;]+)`)
	genericSchedulerRe = regexp.MustCompile(`(?i)\bscheduler[:=]\s*([^,\n;]+)`)
	genericModelRe     = regexp.MustCompile(`(?i)\b(?:model|checkpoint)[:=]\s*([^,\n;]+)`)
	genericWidthRe     = regexp.MustCompile(`(?i)\bwidth[:=]\s*(\d+)`)
	genericHeightRe    = regexp.MustCompile(`(?i)\bheight[:=]\s*(\d+)`)
	genericSizeRe      = regexp.MustCompile(`(?i)\bsize[:=]\s*(\d+)\s*x\s*(\d+)`)
	genericPromptRe    = regexp.MustCompile(`(?i)\b(?:positive\s+)?prompt[:=]\s*"?([^"\n]+)"?`)
	genericNegativeRe  = regexp.MustCompile(`(?i)\bnegative\s+prompt[:=]\s*"?([^"\n]+)"?`)
	genericKVLineRe    = regexp.MustCompile(`[:=]`)
)

func (e *GenericExtractor) Name() string { return "generic" }

// Detect always succeeds; the generic extractor is the floor of the
// dispatcher's search.
func (e *GenericExtractor) Detect(_ *RawMetadataBlob) bool { return true }

func (e *GenericExtractor) Parse(b *RawMetadataBlob) *FieldMap {
	fm := &FieldMap{}

	var sb strings.Builder
	for _, key := range genericTextKeys {
		if v := b.Field(key); v != "" {
			sb.WriteString(v)
			sb.WriteString("\n")
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return fm
	}

	lower := strings.ToLower(text)
	for _, sig := range vendorSignatures {
		if strings.Contains(lower, sig.marker) {
			fm.SetExtra("tool", sig.tool)
			break
		}
	}

	if raw, ok := firstMatch(genericSeedRe, text); ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fm.SetSeed(v)
		}
	}
	if raw, ok := firstMatch(genericStepsRe, text); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			fm.Steps = v
		}
	}
	if raw, ok := firstMatch(genericCFGRe, text); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			fm.CFGScale = v
		}
	}
	if raw, ok := firstMatch(genericSamplerRe, text); ok {
		fm.Sampler = raw
	}
	if raw, ok := firstMatch(genericSchedulerRe, text); ok {
		fm.Scheduler = raw
	}
	if raw, ok := firstMatch(genericModelRe, text); ok {
		fm.ModelName = strings.Trim(raw, `"'`)
	}
	if m := genericSizeRe.FindStringSubmatch(text); m != nil {
		fm.Width, _ = strconv.Atoi(m[1])
		fm.Height, _ = strconv.Atoi(m[2])
	}
	if fm.Width == 0 {
		if raw, ok := firstMatch(genericWidthRe, text); ok {
			fm.Width, _ = strconv.Atoi(raw)
		}
	}
	if fm.Height == 0 {
		if raw, ok := firstMatch(genericHeightRe, text); ok {
			fm.Height, _ = strconv.Atoi(raw)
		}
	}

	if raw, ok := firstMatch(genericNegativeRe, text); ok {
		fm.NegativePrompt = strings.Trim(raw, `"' `)
	}
	if raw, ok := firstMatch(genericPromptRe, text); ok && !strings.EqualFold(raw, fm.NegativePrompt) {
		fm.PositivePrompt = strings.Trim(raw, `"' `)
	}

	// Last resort: a leading free-text line with no key:value shape is
	// probably the prompt.
	if fm.PositivePrompt == "" {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !genericKVLineRe.MatchString(line) && len(line) > 10 {
				fm.PositivePrompt = line
			}
			break
		}
	}

	return fm
}
