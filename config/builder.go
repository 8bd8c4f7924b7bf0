package config

import (
	"log/slog"
	"sort"

	"github.com/jpalmerr/ihtml"
	"github.com/jpalmerr/ihtml/preview"
)

// DocumentOptions converts the configuration of one page into document options.
//
// Global headers are applied first so page headers win on conflict.
// Overrides are applied in selector order.
func DocumentOptions(cfg *Config, page PageConfig) []ihtml.Option {
	var opts []ihtml.Option

	if len(cfg.Headers) > 0 {
		opts = append(opts, ihtml.WithPageHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	if len(page.Headers) > 0 {
		opts = append(opts, ihtml.WithPageHeaders(mapToKeyValuePairs(page.Headers)...))
	}

	if cfg.RevealAll {
		opts = append(opts, ihtml.WithRevealAll())
	}
	if cfg.RefreshUnit != 0 {
		opts = append(opts, ihtml.WithRefreshUnit(cfg.RefreshUnit.Duration()))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, ihtml.WithMaxBodySize(cfg.MaxBodySize))
	}

	selectors := make([]string, 0, len(page.Overrides))
	for s := range page.Overrides {
		selectors = append(selectors, s)
	}
	sort.Strings(selectors)
	for _, s := range selectors {
		opts = append(opts, ihtml.WithAttributeOverride(s, mapToKeyValuePairs(page.Overrides[s])...))
	}

	return opts
}

// PreviewOptions converts the configuration of one page into preview options.
func PreviewOptions(cfg *Config, page PageConfig, logger *slog.Logger) []preview.Option {
	opts := []preview.Option{
		preview.WithPage(page.URL),
		preview.WithPort(cfg.Port),
		preview.WithDocumentOptions(DocumentOptions(cfg, page)...),
	}
	if cfg.Title != "" {
		opts = append(opts, preview.WithTitle(cfg.Title))
	}
	if cfg.SettleTimeout > 0 {
		opts = append(opts, preview.WithSettleTimeout(cfg.SettleTimeout.Duration()))
	}
	if logger != nil {
		opts = append(opts, preview.WithLogger(logger))
	}
	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
