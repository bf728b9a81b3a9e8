package document

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/page-analyzer/internal/crawler"
)

// Features holds the structural counts and flags of one page.
type Features struct {
	Title         string
	HasTitle      bool
	Headings      [crawler.HeadingLevels]int
	InternalLinks int
	ExternalLinks int
	HasLoginForm  bool
	HTMLVersion   crawler.HTMLVersion
}

// Apply copies the features onto a result.
func (f Features) Apply(r crawler.AnalysisResult) crawler.AnalysisResult {
	r.Title = f.Title
	r.Headings = f.Headings
	r.InternalLinks = f.InternalLinks
	r.ExternalLinks = f.ExternalLinks
	r.HasLoginForm = f.HasLoginForm
	r.HTMLVersion = f.HTMLVersion
	return r
}

// Walk folds over the tree rooted at root in depth-first pre-order and
// returns the accumulated features. The first title wins.
func Walk(root *html.Node) Features {
	f := fold(root, Features{}, visit)
	f.HTMLVersion = DetectVersion(root)
	return f
}

func fold[T any](n *html.Node, acc T, fn func(*html.Node, T) T) T {
	if n == nil {
		return acc
	}
	acc = fn(n, acc)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		acc = fold(c, acc, fn)
	}
	return acc
}

func visit(n *html.Node, f Features) Features {
	if n.Type != html.ElementNode {
		return f
	}
	switch n.Data {
	case "title":
		if !f.HasTitle && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			f.Title = n.FirstChild.Data
			f.HasTitle = true
		}
	case "h1", "h2", "h3", "h4", "h5", "h6":
		f.Headings[n.Data[1]-'1']++
	case "a":
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			if IsExternal(attr.Val) {
				f.ExternalLinks++
			} else {
				f.InternalLinks++
			}
		}
	case "form":
		if !f.HasLoginForm && IsLoginForm(n) {
			f.HasLoginForm = true
		}
	}
	return f
}

// IsExternal applies the href prefix heuristic: any value starting with
// "http" counts as external, without checking for a scheme boundary.
func IsExternal(href string) bool {
	return strings.HasPrefix(href, "http")
}

// IsLoginForm reports whether a form element posts to a login-like action or
// contains a password input anywhere beneath it.
func IsLoginForm(form *html.Node) bool {
	for _, attr := range form.Attr {
		if attr.Key == "action" && (strings.Contains(attr.Val, "login") || strings.Contains(attr.Val, "signin")) {
			return true
		}
	}
	return fold(form, false, func(n *html.Node, found bool) bool {
		return found || isPasswordInput(n)
	})
}

func isPasswordInput(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "input" {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == "type" && attr.Val == "password" {
			return true
		}
	}
	return false
}
