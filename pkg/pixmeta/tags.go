package pixmeta

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// minTagLength filters out noise tokens like single letters and "a,".
const minTagLength = 3

var (
	loraRefRe      = regexp.MustCompile(`<lora:[^>]+>`)
	weightSuffixRe = regexp.MustCompile(`::[\d.]+`)
	parenWeightRe  = regexp.MustCompile(`\(([^():]*):[\d.]+\)`)
	parenRe        = regexp.MustCompile(`\(([^()]*)\)`)
	bracketRe      = regexp.MustCompile(`[<>\[\]{}]`)
	tagSplitRe     = regexp.MustCompile(`[,\n]+`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// stopwords are pure connective words that carry no tag meaning.
var stopwords = map[string]struct{}{
	"and": {}, "the": {}, "with": {}, "for": {}, "from": {}, "are": {},
	"was": {}, "were": {}, "been": {}, "have": {}, "has": {}, "had": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "can": {}, "must": {}, "very": {}, "too": {}, "also": {},
	"just": {}, "only": {},
}

// tagAliases folds common phrasing variants onto one canonical spelling.
var tagAliases = map[string]string{
	"1 girl":          "1girl",
	"2 girls":         "2girls",
	"3 girls":         "3girls",
	"1 boy":           "1boy",
	"2 boys":          "2boys",
	"multiple girls":  "multiple_girls",
	"multiple boys":   "multiple_boys",
	"high quality":    "high_quality",
	"best quality":    "best_quality",
	"worst quality":   "worst_quality",
	"low quality":     "low_quality",
	"normal quality":  "normal_quality",
	"long hair":       "long_hair",
	"short hair":      "short_hair",
	"very long hair":  "very_long_hair",
	"blue hair":       "blue_hair",
	"blonde hair":     "blonde_hair",
	"brown hair":      "brown_hair",
	"black hair":      "black_hair",
	"red hair":        "red_hair",
	"white hair":      "white_hair",
	"blue eyes":       "blue_eyes",
	"brown eyes":      "brown_eyes",
	"green eyes":      "green_eyes",
	"red eyes":        "red_eyes",
	"yellow eyes":     "yellow_eyes",
	"looking at viewer": "looking_at_viewer",
	"from behind":       "from_behind",
	"perfect face":      "perfect_face",
	"detailed face":     "detailed_face",
	"detailed eyes":     "detailed_eyes",
	"bad anatomy":       "bad_anatomy",
	"bad hands":         "bad_hands",
	"missing limb":      "missing_limb",
	"extra limb":        "extra_limb",
	"floating limbs":    "floating_limbs",
}

// NormalizeTag lowercases and whitespace-normalizes a raw prompt phrase and
// folds known variants onto their canonical spelling.
func NormalizeTag(tag string) string {
	normalized := strings.ToLower(spaceRe.ReplaceAllString(strings.TrimSpace(tag), " "))
	if alias, ok := tagAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// ExtractTags tokenizes prompt-like free text into the set of canonical tags
// it mentions. Duplicates within one prompt collapse to a single occurrence,
// and re-tokenizing an already-normalized tag list is a fixed point, so
// counting per image stays deterministic.
func ExtractTags(prompt string) []string {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}

	// Strip LoRA references and weighting syntax before splitting.
	prompt = loraRefRe.ReplaceAllString(prompt, "")
	prompt = weightSuffixRe.ReplaceAllString(prompt, "")
	prompt = parenWeightRe.ReplaceAllString(prompt, "$1")
	prompt = parenRe.ReplaceAllString(prompt, "$1")
	prompt = bracketRe.ReplaceAllString(prompt, "")

	seen := map[string]struct{}{}
	for _, phrase := range tagSplitRe.Split(prompt, -1) {
		tag := NormalizeTag(phrase)
		if len(tag) < minTagLength {
			continue
		}
		if _, stop := stopwords[tag]; stop {
			continue
		}
		seen[tag] = struct{}{}
	}

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// checkpoint file extensions stripped from model names.
var modelExtensions = []string{".safetensors", ".ckpt", ".pt", ".pth", ".bin"}

var (
	modelPrefixes = []string{"checkpoint_", "model_", "final_"}
	modelSuffixes = []string{"_final", "_checkpoint", "_model", "_v1", "_v2", "_v3", "_epoch"}
)

// NormalizeModelName reduces a checkpoint path or raw model string to a
// clean display name: basename, extension and noise affixes stripped,
// underscores flattened to spaces.
func NormalizeModelName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Unknown Model"
	}

	n := filepath.Base(strings.ReplaceAll(name, `\`, `/`))
	lower := strings.ToLower(n)
	for _, ext := range modelExtensions {
		if strings.HasSuffix(lower, ext) {
			n = n[:len(n)-len(ext)]
			break
		}
	}

	lower = strings.ToLower(n)
	for _, p := range modelPrefixes {
		if strings.HasPrefix(lower, p) {
			n = n[len(p):]
			break
		}
	}
	lower = strings.ToLower(n)
	for _, s := range modelSuffixes {
		if strings.HasSuffix(lower, s) {
			n = n[:len(n)-len(s)]
			break
		}
	}

	n = strings.TrimSpace(spaceRe.ReplaceAllString(strings.ReplaceAll(n, "_", " "), " "))
	if n == "" {
		return "Unknown Model"
	}
	return n
}
