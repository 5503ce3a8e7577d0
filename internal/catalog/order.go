package catalog

import (
	"sort"
	"strings"

	"github.com/suPer8Hu/agentk/internal/store"
)

// DefaultProviderOrder is the display order for known providers.
var DefaultProviderOrder = []string{
	"OpenAI", "Anthropic", "xAI", "Google", "Groq", "Cohere",
	"Perplexity", "OpenRouter", "DeepInfra", "HuggingFace", "Ollama",
}

// ProviderLess returns a comparison that puts known providers in their
// configured position and every unknown provider after them. Ties fall back
// to case-insensitive then byte order.
func ProviderLess(order []string) func(a, b string) bool {
	rank := make(map[string]int, len(order))
	for i, p := range order {
		key := strings.ToLower(strings.TrimSpace(p))
		if _, dup := rank[key]; !dup && key != "" {
			rank[key] = i
		}
	}
	pos := func(p string) int {
		if i, ok := rank[strings.ToLower(p)]; ok {
			return i
		}
		return len(order)
	}
	return func(a, b string) bool {
		pa, pb := pos(a), pos(b)
		if pa != pb {
			return pa < pb
		}
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	}
}

// SortModels orders enabled models first, then by label, provider and id.
func SortModels(models []store.Model) {
	sort.SliceStable(models, func(i, j int) bool {
		a, b := models[i], models[j]
		if a.Enabled != b.Enabled {
			return a.Enabled
		}
		la, lb := strings.ToLower(a.Label()), strings.ToLower(b.Label())
		if la != lb {
			return la < lb
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ID < b.ID
	})
}
