package pixmeta

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// NodeGraphExtractor parses node-graph workflow JSON (ComfyUI style). Graphs
// carry no fixed node ordering, so roles are classified by type-tag string
// matching, never by position.
type NodeGraphExtractor struct{}

// container keys that may carry workflow JSON.
var graphKeys = []string{"workflow", "Workflow", "prompt", "Prompt", "ComfyUI", "comfyui", "workflow_data"}

type graphNode struct {
	ClassType string         `json:"class_type"`
	Type      string         `json:"type"`
	Inputs    map[string]any `json:"inputs"`
	Data      map[string]any `json:"data"`
}

// typeTag returns whichever type tag variant the node carries.
func (n *graphNode) typeTag() string {
	if n.ClassType != "" {
		return n.ClassType
	}
	return n.Type
}

// params returns the node's parameter dict.
func (n *graphNode) params() map[string]any {
	if n.Inputs != nil {
		return n.Inputs
	}
	return n.Data
}

func (e *NodeGraphExtractor) Name() string { return "nodegraph" }

func (e *NodeGraphExtractor) Detect(b *RawMetadataBlob) bool {
	_, ok := e.decode(b)
	return ok
}

// decode finds and unmarshals the workflow graph as id → node. Both the flat
// API form (object keyed by node id) and the editor form (object with a
// "nodes" array) are accepted.
func (e *NodeGraphExtractor) decode(b *RawMetadataBlob) (map[string]graphNode, bool) {
	for _, key := range graphKeys {
		raw := b.Field(key)
		if raw == "" {
			continue
		}
		var top map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &top); err != nil {
			continue
		}

		if nodesRaw, ok := top["nodes"]; ok {
			var list []graphNode
			if err := json.Unmarshal(nodesRaw, &list); err != nil {
				continue
			}
			nodes := make(map[string]graphNode, len(list))
			for i, n := range list {
				nodes[strconv.Itoa(i)] = n
			}
			if len(nodes) > 0 {
				return nodes, true
			}
			continue
		}

		nodes := make(map[string]graphNode, len(top))
		typed := false
		for id, msg := range top {
			var n graphNode
			if err := json.Unmarshal(msg, &n); err != nil {
				continue
			}
			if n.typeTag() != "" {
				typed = true
			}
			nodes[id] = n
		}
		if typed {
			return nodes, true
		}
	}
	return nil, false
}

func (e *NodeGraphExtractor) Parse(b *RawMetadataBlob) *FieldMap {
	fm := &FieldMap{}
	nodes, ok := e.decode(b)
	if !ok {
		return fm
	}

	var samplerInputs map[string]any
	encoders := map[string]string{} // node id -> prompt text
	var loras []string

	// Deterministic walk: graphs are unordered, so visit ids sorted.
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aerr := strconv.Atoi(ids[i])
		b, berr := strconv.Atoi(ids[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		n := nodes[id]
		tag := n.typeTag()
		p := n.params()
		if tag == "" || p == nil {
			continue
		}

		switch {
		case strings.Contains(tag, "CheckpointLoader") || strings.Contains(tag, "ModelLoader"):
			if v, ok := asString(p["ckpt_name"]); ok {
				fm.ModelName = v
			}
		case strings.Contains(tag, "KSampler") || strings.Contains(strings.ToLower(tag), "sampler"):
			if v, ok := asInt(p["steps"]); ok {
				fm.Steps = v
			}
			if v, ok := asFloat(p["cfg"]); ok {
				fm.CFGScale = v
			}
			if v, ok := asInt64(p["seed"]); ok {
				fm.SetSeed(v)
			}
			if v, ok := asString(p["sampler_name"]); ok {
				fm.Sampler = v
			}
			if v, ok := asString(p["scheduler"]); ok {
				fm.Scheduler = v
			}
			if v, ok := asFloat(p["denoise"]); ok {
				fm.SetExtra("denoising_strength", v)
			}
			samplerInputs = p
		case strings.Contains(tag, "CLIPTextEncode") || strings.Contains(tag, "TextEncode"):
			if v, ok := asString(p["text"]); ok {
				encoders[id] = v
			}
		case strings.Contains(tag, "EmptyLatentImage") || strings.Contains(tag, "LatentUpscale"):
			if v, ok := asInt(p["width"]); ok {
				fm.Width = v
			}
			if v, ok := asInt(p["height"]); ok {
				fm.Height = v
			}
		case strings.Contains(tag, "LoRA") || strings.Contains(tag, "LoraLoader"):
			if v, ok := asString(p["lora_name"]); ok {
				loras = append(loras, v)
			}
		case strings.Contains(tag, "ControlNet"):
			if v, ok := asString(p["control_net_name"]); ok {
				fm.SetExtra("controlnet_model", v)
			}
			if v, ok := asFloat(p["strength"]); ok {
				fm.SetExtra("controlnet_weight", v)
			}
		case strings.Contains(tag, "VAE"):
			if v, ok := asString(p["vae_name"]); ok {
				fm.SetExtra("vae", v)
			}
		}
	}

	if len(loras) > 0 {
		fm.SetExtra("lora_models", loras)
	}

	e.assignPrompts(fm, samplerInputs, encoders, ids)
	return fm
}

// assignPrompts resolves which text encoder feeds the sampler's positive and
// negative inputs. When connectivity cannot be resolved, the first encoder
// (in id order) is taken as positive and the second as negative, and the
// record is flagged low-confidence.
func (e *NodeGraphExtractor) assignPrompts(fm *FieldMap, samplerInputs map[string]any, encoders map[string]string, ids []string) {
	if len(encoders) == 0 {
		return
	}

	if samplerInputs != nil {
		pos, posOK := linkTarget(samplerInputs["positive"])
		neg, negOK := linkTarget(samplerInputs["negative"])
		if posOK || negOK {
			if t, ok := encoders[pos]; posOK && ok {
				fm.PositivePrompt = t
			}
			if t, ok := encoders[neg]; negOK && ok {
				fm.NegativePrompt = t
			}
			if fm.PositivePrompt != "" || fm.NegativePrompt != "" {
				return
			}
		}
	}

	ordered := []string{}
	for _, id := range ids {
		if _, ok := encoders[id]; ok {
			ordered = append(ordered, id)
		}
	}
	if len(ordered) > 0 {
		fm.PositivePrompt = encoders[ordered[0]]
	}
	if len(ordered) > 1 {
		fm.NegativePrompt = encoders[ordered[1]]
	}
	fm.LowConfidence = true
}

// linkTarget unpacks a graph link value of the form ["<node id>", slot].
func linkTarget(v any) (string, bool) {
	link, ok := v.([]any)
	if !ok || len(link) == 0 {
		return "", false
	}
	return asStringLoose(link[0])
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// asStringLoose also accepts numeric node ids.
func asStringLoose(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatInt(int64(t), 10), true
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
