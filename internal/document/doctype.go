package document

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
)

// versionMarkers are checked in order against the lowercased declaration.
var versionMarkers = []struct {
	marker  string
	version crawler.HTMLVersion
}{
	{"xhtml 1.1", crawler.XHTML11},
	{"xhtml 1.0", crawler.XHTML10},
	{"html 4.01", crawler.HTML401},
	{"html 4.0", crawler.HTML40},
}

// DetectVersion classifies the first doctype node in the tree. Pages with no
// doctype, or with one that matches nothing, are reported as HTML5.
func DetectVersion(root *html.Node) crawler.HTMLVersion {
	doctype := findDoctype(root)
	if doctype == nil {
		return crawler.HTML5
	}
	return ClassifyDoctype(Declaration(doctype))
}

// ClassifyDoctype maps a doctype declaration to an HTMLVersion.
func ClassifyDoctype(decl string) crawler.HTMLVersion {
	lower := strings.ToLower(decl)
	if strings.Contains(lower, "html 5") || decl == "html" {
		return crawler.HTML5
	}
	for _, m := range versionMarkers {
		if strings.Contains(lower, m.marker) {
			return m.version
		}
	}
	return crawler.HTML5
}

// Declaration rebuilds the doctype text after the DOCTYPE keyword. The
// parser keeps the root name in Data and the identifiers as attributes.
func Declaration(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	for _, key := range []string{"public", "system"} {
		for _, attr := range n.Attr {
			if attr.Key != key {
				continue
			}
			if key == "public" {
				b.WriteString(` PUBLIC`)
			}
			b.WriteString(` "`)
			b.WriteString(attr.Val)
			b.WriteString(`"`)
		}
	}
	return b.String()
}

func findDoctype(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.DoctypeNode {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findDoctype(c); found != nil {
			return found
		}
	}
	return nil
}
