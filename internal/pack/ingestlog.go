package pack

const (
	// logWindow is how many of the newest merged URLs are considered.
	logWindow = 200
	// logKeep is how many deduplicated URLs are retained per pack.
	logKeep = 50
	// summaryURLs is how many recent URLs a Summary shows.
	summaryURLs = 10
)

// mergeLog appends urls to prev, takes the newest logWindow entries,
// deduplicates them keeping the first occurrence and returns the newest
// logKeep of the result.
func mergeLog(prev, urls []string) []string {
	merged := make([]string, 0, len(prev)+len(urls))
	merged = append(merged, prev...)
	merged = append(merged, urls...)
	if len(merged) > logWindow {
		merged = merged[len(merged)-logWindow:]
	}

	seen := make(map[string]bool, len(merged))
	out := make([]string, 0, len(merged))
	for _, u := range merged {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	if len(out) > logKeep {
		out = out[len(out)-logKeep:]
	}
	return out
}

// tail returns a copy of the last n entries of s.
func tail(s []string, n int) []string {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return append([]string{}, s...)
}
