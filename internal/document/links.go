package document

import (
	"net/url"

	"golang.org/x/net/html"
)

// ResolveLinks returns every anchor href resolved against base, in document
// order. References that fail to parse are skipped.
func ResolveLinks(root *html.Node, base *url.URL) []string {
	return fold(root, []string(nil), func(n *html.Node, links []string) []string {
		if n.Type != html.ElementNode || n.Data != "a" {
			return links
		}
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			if resolved, ok := Resolve(base, attr.Val); ok {
				links = append(links, resolved)
			}
		}
		return links
	})
}

// Resolve resolves a single reference against base.
func Resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
