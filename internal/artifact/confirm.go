package artifact

import (
	"bytes"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Large-file hosts answer the first request for a big file with an HTML
// interstitial ("can't scan this file for viruses") instead of the payload.
// The real download needs a confirmation token taken from a cookie, a link
// in the page or the page's download form.

var confirmParam = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)

// confirmationURL returns the URL that skips the interstitial, or "" when the
// response carries no confirmation step.
func confirmationURL(reqURL *url.URL, resp *http.Response, body []byte) string {
	for _, c := range resp.Cookies() {
		if strings.HasPrefix(c.Name, "download_warning") && c.Value != "" {
			return withQuery(reqURL, url.Values{"confirm": {c.Value}})
		}
	}
	if u := formURL(reqURL, body); u != "" {
		return u
	}
	if m := confirmParam.FindSubmatch(body); m != nil {
		return withQuery(reqURL, url.Values{"confirm": {string(m[1])}})
	}
	return ""
}

func withQuery(u *url.URL, extra url.Values) string {
	out := *u
	q := out.Query()
	for k, v := range extra {
		q[k] = v
	}
	out.RawQuery = q.Encode()
	return out.String()
}

// formURL finds <form id="download-form" action=...> and encodes its hidden
// inputs as the query of the action URL.
func formURL(base *url.URL, body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	form := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "form" && attr(n, "id") == "download-form"
	})
	if form == nil {
		return ""
	}
	action, err := base.Parse(attr(form, "action"))
	if err != nil || action.String() == "" {
		return ""
	}
	vals := url.Values{}
	walk(form, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") != "" {
			vals.Set(attr(n, "name"), attr(n, "value"))
		}
	})
	if vals.Get("confirm") == "" && vals.Get("id") == "" {
		return ""
	}
	return withQuery(action, vals)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findNode(c, match); f != nil {
			return f
		}
	}
	return nil
}
