package main

import "github.com/ferro-labs/inference-gateway/internal/cost"

// EnrichedModelInfo is the /v1/models response shape: an OpenAI-style model
// listing enriched with pricing and capability data from the cost catalog
// when a match is found.
type EnrichedModelInfo struct {
	ID          string   `json:"id"`
	Object      string   `json:"object"`
	OwnedBy     string   `json:"owned_by"`
	DisplayName string   `json:"display_name,omitempty"`
	ContextSize int      `json:"context_window,omitempty"`
	Pricing     *Pricing `json:"pricing,omitempty"`
	Vision      bool     `json:"vision,omitempty"`
	Tools       bool     `json:"function_calling,omitempty"`
	Streaming   bool     `json:"streaming,omitempty"`
}

// Pricing is the subset of cost.Pricing worth surfacing to API callers.
type Pricing struct {
	InputPerMTokens  *float64 `json:"input_per_m_tokens,omitempty"`
	OutputPerMTokens *float64 `json:"output_per_m_tokens,omitempty"`
}

// enrichFromCatalog looks up provider/modelID in the catalog and folds
// whatever it finds into an EnrichedModelInfo. A catalog miss still yields
// a usable (if sparse) entry: unknown pricing never hides a model from the
// listing.
func enrichFromCatalog(catalog cost.Catalog, provider, modelID string) EnrichedModelInfo {
	info := EnrichedModelInfo{
		ID:      modelID,
		Object:  "model",
		OwnedBy: provider,
	}

	m, ok := catalog.Get(provider + "/" + modelID)
	if !ok {
		return info
	}

	info.DisplayName = m.DisplayName
	info.ContextSize = m.ContextWindow
	info.Vision = m.Capabilities.Vision
	info.Tools = m.Capabilities.FunctionCalling
	info.Streaming = m.Capabilities.Streaming
	if m.Pricing.InputPerMTokens != nil || m.Pricing.OutputPerMTokens != nil {
		info.Pricing = &Pricing{
			InputPerMTokens:  m.Pricing.InputPerMTokens,
			OutputPerMTokens: m.Pricing.OutputPerMTokens,
		}
	}
	return info
}
