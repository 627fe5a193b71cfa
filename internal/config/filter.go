package config

// MergeFilter combines a workspace's own filter override with the
// file's global ignore/protect lists, per spec.md §6: override=false
// (or a nil override) merges onto the global lists, override=true
// replaces them outright.
func MergeFilter(global FilterConfig, override *FilterOverride) (ignore, protect []string) {
	if override == nil {
		return global.Ignore, global.Protect
	}
	if override.Override {
		return override.Ignore, override.Protect
	}
	return append(append([]string{}, global.Ignore...), override.Ignore...),
		append(append([]string{}, global.Protect...), override.Protect...)
}
