package pixmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const comfyAPIGraph = `{
  "3": {
    "class_type": "KSampler",
    "inputs": {
      "seed": 871205, "steps": 25, "cfg": 8.0,
      "sampler_name": "dpmpp_2m", "scheduler": "karras", "denoise": 1.0,
      "positive": ["6", 0], "negative": ["7", 0]
    }
  },
  "4": {
    "class_type": "CheckpointLoaderSimple",
    "inputs": {"ckpt_name": "sd_xl_base_1.0.safetensors"}
  },
  "5": {
    "class_type": "EmptyLatentImage",
    "inputs": {"width": 1024, "height": 1024}
  },
  "6": {
    "class_type": "CLIPTextEncode",
    "inputs": {"text": "a lighthouse in a storm"}
  },
  "7": {
    "class_type": "CLIPTextEncode",
    "inputs": {"text": "blurry, low quality"}
  },
  "8": {
    "class_type": "LoraLoader",
    "inputs": {"lora_name": "crisp-detail.safetensors"}
  }
}`

func graphBlob(raw string) *RawMetadataBlob {
	return &RawMetadataBlob{
		Fields: map[string]string{"workflow": raw},
		Hint:   HintWorkflow,
	}
}

func TestNodeGraphParseConnectivity(t *testing.T) {
	e := &NodeGraphExtractor{}
	b := graphBlob(comfyAPIGraph)

	require.True(t, e.Detect(b))
	fm := e.Parse(b)

	assert.Equal(t, "a lighthouse in a storm", fm.PositivePrompt)
	assert.Equal(t, "blurry, low quality", fm.NegativePrompt)
	assert.False(t, fm.LowConfidence)

	assert.Equal(t, "sd_xl_base_1.0.safetensors", fm.ModelName)
	assert.Equal(t, 25, fm.Steps)
	assert.Equal(t, 8.0, fm.CFGScale)
	require.True(t, fm.SeedSet)
	assert.Equal(t, int64(871205), fm.Seed)
	assert.Equal(t, "dpmpp_2m", fm.Sampler)
	assert.Equal(t, "karras", fm.Scheduler)
	assert.Equal(t, 1024, fm.Width)
	assert.Equal(t, 1024, fm.Height)
	assert.Equal(t, []string{"crisp-detail.safetensors"}, fm.Extra["lora_models"])
}

// Without sampler links the encoders are assigned positionally and the
// record is flagged low-confidence.
func TestNodeGraphParsePositionalFallback(t *testing.T) {
	e := &NodeGraphExtractor{}
	b := graphBlob(`{
	  "2": {"class_type": "CLIPTextEncode", "inputs": {"text": "a red fox"}},
	  "10": {"class_type": "CLIPTextEncode", "inputs": {"text": "deformed"}}
	}`)

	fm := e.Parse(b)
	assert.Equal(t, "a red fox", fm.PositivePrompt)
	assert.Equal(t, "deformed", fm.NegativePrompt)
	assert.True(t, fm.LowConfidence)
}

// Editor exports wrap nodes in a "nodes" array with "type" tags.
func TestNodeGraphParseEditorForm(t *testing.T) {
	e := &NodeGraphExtractor{}
	b := graphBlob(`{
	  "nodes": [
	    {"type": "CheckpointLoaderSimple", "data": {"ckpt_name": "flux-dev.safetensors"}},
	    {"type": "CLIPTextEncode", "data": {"text": "a quiet harbor"}}
	  ]
	}`)

	require.True(t, e.Detect(b))
	fm := e.Parse(b)
	assert.Equal(t, "flux-dev.safetensors", fm.ModelName)
	assert.Equal(t, "a quiet harbor", fm.PositivePrompt)
	assert.True(t, fm.LowConfidence)
}

func TestNodeGraphDetectRejectsNonGraphJSON(t *testing.T) {
	e := &NodeGraphExtractor{}
	assert.False(t, e.Detect(graphBlob(`{"steps": 20, "scale": 7}`)))
	assert.False(t, e.Detect(graphBlob(`not json at all`)))
	assert.False(t, e.Detect(&RawMetadataBlob{}))
}

func TestNodeGraphParseControlNetAndVAE(t *testing.T) {
	e := &NodeGraphExtractor{}
	b := graphBlob(`{
	  "1": {"class_type": "ControlNetLoader", "inputs": {"control_net_name": "canny-v11"}},
	  "2": {"class_type": "ControlNetApply", "inputs": {"strength": 0.85}},
	  "3": {"class_type": "VAELoader", "inputs": {"vae_name": "sdxl-vae"}}
	}`)

	fm := e.Parse(b)
	assert.Equal(t, 0.85, fm.Extra["controlnet_weight"])
	assert.Equal(t, "sdxl-vae", fm.Extra["vae"])
}

// Numeric strings still coerce; graphs emitted by older frontends quote
// their numbers.
func TestNodeGraphParseStringNumbers(t *testing.T) {
	e := &NodeGraphExtractor{}
	b := graphBlob(`{
	  "1": {"class_type": "KSampler", "inputs": {"seed": "42", "steps": "15", "cfg": "6.5"}}
	}`)

	fm := e.Parse(b)
	assert.Equal(t, 15, fm.Steps)
	assert.Equal(t, 6.5, fm.CFGScale)
	require.True(t, fm.SeedSet)
	assert.Equal(t, int64(42), fm.Seed)
}
