package sources

import (
	"net/url"
	"strings"
)

// NormalizeHost reduces a candidate to the key used for deduplication: the
// lowercase hostname without a leading "www.". Entries without a dot are not
// valid candidates.
func NormalizeHost(entry string) (string, bool) {
	var host string
	if strings.HasPrefix(entry, "http") {
		host = entry
		if u, err := url.Parse(entry); err == nil && u.Hostname() != "" {
			host = strings.ToLower(u.Hostname())
		}
	} else {
		host = strings.ToLower(strings.TrimSpace(entry))
	}
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") {
		return "", false
	}
	return host, true
}

// MergeAndDeduplicate concatenates the lists and keeps the first original
// entry seen for each normalized host, preserving order.
func MergeAndDeduplicate(lists ...[]string) []string {
	seen := make(map[string]struct{})
	result := []string{}
	for _, list := range lists {
		for _, entry := range list {
			host, ok := NormalizeHost(entry)
			if !ok {
				continue
			}
			if _, dup := seen[host]; dup {
				continue
			}
			seen[host] = struct{}{}
			result = append(result, entry)
		}
	}
	return result
}
