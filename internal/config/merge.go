package config

import (
	"sort"
	"strings"
	"time"
)

// Runtime option names overlaid onto the base model configuration.
const (
	KeyModelName            = "model_name"
	KeyBackend              = "backend"
	KeyDistributedBackend   = "distributed_backend"
	KeyDisableCUDAGraph     = "disable_cuda_graph"
	KeyEnforceEager         = "enforce_eager"
	KeyReasoningParser      = "reasoning_parser"
	KeyEnableAutoToolChoice = "enable_auto_tool_choice"
	KeyToolCallParser       = "tool_call_parser"
	KeyEnablePrefixCaching  = "enable_prefix_caching"
	KeyTrustRemoteCode      = "trust_remote_code"
	KeyMaxNumSeqs           = "max_num_seqs"
	KeyIsEmbedding          = "is_embedding"
	KeyEnableExpertParallel = "enable_expert_parallel"
	KeyPipelineParallelSize = "pipeline_parallel_size"
)

// OverlayKeys are the runtime options that always override the base mapping,
// in the order they are applied. KeyBackend additionally selects the kind.
var OverlayKeys = []string{
	KeyModelName,
	KeyBackend,
	KeyDistributedBackend,
	KeyDisableCUDAGraph,
	KeyEnforceEager,
	KeyReasoningParser,
	KeyEnableAutoToolChoice,
	KeyToolCallParser,
	KeyEnablePrefixCaching,
	KeyTrustRemoteCode,
	KeyMaxNumSeqs,
	KeyIsEmbedding,
	KeyEnableExpertParallel,
	KeyPipelineParallelSize,
}

// Descriptor holds the merged, backend-specific construction parameters.
type Descriptor struct {
	// Kind is the requested backend kind, as written in the runtime options.
	Kind string
	// Model is the served model name.
	Model string
	// Params is the merged mapping: base model config with runtime overlay.
	Params map[string]any
}

// Merge overlays the runtime options listed in OverlayKeys onto a copy of
// base. Runtime values win for those keys; every other base key passes
// through unchanged. A missing runtime key yields a *ConfigError naming all
// missing keys. Neither input is modified.
func Merge(base map[string]any, rc RuntimeConfig) (Descriptor, error) {
	var missing []string
	for _, k := range OverlayKeys {
		if _, ok := rc.m[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Descriptor{}, &ConfigError{Missing: missing}
	}

	params := cloneMap(base)
	for _, k := range OverlayKeys {
		params[k] = cloneValue(rc.m[k])
	}

	kind, _ := asString(params[KeyBackend])
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return Descriptor{}, &ConfigError{Reason: "backend must be a non-empty string"}
	}
	model, _ := asString(params[KeyModelName])
	if strings.TrimSpace(model) == "" {
		return Descriptor{}, &ConfigError{Reason: "model_name must be a non-empty string"}
	}
	return Descriptor{Kind: kind, Model: model, Params: params}, nil
}

// Lookup returns the raw parameter value.
func (d Descriptor) Lookup(key string) (any, bool) {
	v, ok := d.Params[key]
	return v, ok
}

// String returns the parameter as a string, or def when absent or nil.
func (d Descriptor) String(key, def string) string {
	if s, ok := asString(d.Params[key]); ok {
		return s
	}
	return def
}

// Bool returns the parameter as a bool, or def when absent or not boolean.
func (d Descriptor) Bool(key string, def bool) bool {
	if b, ok := asBool(d.Params[key]); ok {
		return b
	}
	return def
}

// Int returns the parameter as an int, or def when absent or not numeric.
func (d Descriptor) Int(key string, def int) int {
	if n, ok := asInt(d.Params[key]); ok {
		return n
	}
	return def
}

// Duration returns the parameter as a duration. Strings use Go duration
// syntax; numbers are seconds.
func (d Descriptor) Duration(key string, def time.Duration) time.Duration {
	if v, ok := asDuration(d.Params[key]); ok {
		return v
	}
	return def
}

// Strings returns the parameter as a string list. A plain string is split on
// whitespace.
func (d Descriptor) Strings(key string) []string {
	if v, ok := asStrings(d.Params[key]); ok {
		return v
	}
	return nil
}
