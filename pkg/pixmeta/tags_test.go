package pixmeta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTags(t *testing.T) {
	tags := ExtractTags("masterpiece, best quality, 1girl, long hair, looking at viewer")
	assert.Equal(t, []string{"1girl", "best_quality", "long_hair", "looking_at_viewer", "masterpiece"}, tags)
}

func TestExtractTagsStripsWeighting(t *testing.T) {
	tags := ExtractTags("(masterpiece:1.2), [flat color], {vivid}, detailed eyes::0.8, <lora:detail-tweaker:0.6>")
	assert.Contains(t, tags, "masterpiece")
	assert.Contains(t, tags, "flat color")
	assert.Contains(t, tags, "vivid")
	assert.Contains(t, tags, "detailed_eyes")
	for _, tag := range tags {
		assert.NotContains(t, tag, "lora")
		assert.NotContains(t, tag, ":")
	}
}

func TestExtractTagsFiltersNoise(t *testing.T) {
	tags := ExtractTags("a, an, the, and, cat, very, dog")
	assert.Equal(t, []string{"cat", "dog"}, tags)
}

func TestExtractTagsDedupes(t *testing.T) {
	tags := ExtractTags("cat, CAT, Cat,\ncat")
	assert.Equal(t, []string{"cat"}, tags)
}

// Re-tokenizing extracted tags must be a fixed point, or counts would
// drift every time a prompt is re-processed.
func TestExtractTagsIdempotent(t *testing.T) {
	prompts := []string{
		"masterpiece, (best quality:1.3), 1 girl, blue eyes, <lora:x:1>",
		"blurry, BAD ANATOMY, low quality, jpeg artifacts",
		"a castle at sunset, dramatic lighting, highly detailed",
	}
	for _, p := range prompts {
		first := ExtractTags(p)
		second := ExtractTags(strings.Join(first, ", "))
		assert.Equal(t, first, second, "prompt %q", p)
	}
}

func TestExtractTagsEmpty(t *testing.T) {
	assert.Nil(t, ExtractTags(""))
	assert.Nil(t, ExtractTags("   \n  "))
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "long_hair", NormalizeTag("  Long   Hair "))
	assert.Equal(t, "1girl", NormalizeTag("1 girl"))
	assert.Equal(t, "sunset glow", NormalizeTag("Sunset  Glow"))
}

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Unknown Model"},
		{"   ", "Unknown Model"},
		{"dreamshaper_8.safetensors", "dreamshaper 8"},
		{`C:\models\checkpoint_anything-v4.ckpt`, "anything-v4"},
		{"/srv/sd/models/realisticVision_v2.safetensors", "realisticVision"},
		{"model_epic_final", "epic"},
		{"plain-name", "plain-name"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeModelName(tc.in), "input %q", tc.in)
	}
}
