package enricher

import "net/url"

// candidatePrefixes are tried, in order, after the raw and base-joined forms
var candidatePrefixes = []string{
	"https://",
	"http://",
	"https:",
	"http:",
	"https:/",
	"http:/",
}

// Candidates returns the ordered, duplicate-free list of URLs to try for
// rawURL. The first candidate is always rawURL itself.
func Candidates(rawURL, baseURL string) []string {
	all := make([]string, 0, len(candidatePrefixes)+2)
	all = append(all, rawURL, joinURL(baseURL, rawURL))
	for _, prefix := range candidatePrefixes {
		all = append(all, prefix+rawURL)
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, c := range all {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// joinURL resolves ref against base using RFC 3986 reference resolution.
// An empty or unparsable base yields ref unchanged.
func joinURL(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
