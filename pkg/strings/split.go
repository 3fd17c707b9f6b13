package strings

import "strings"

// SplitList splits a comma-separated label or annotation value, trimming
// spaces and dropping empty items. An empty input yields nil.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
