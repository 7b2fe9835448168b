package capture

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FormDef is the extracted definition of a page's form: resolved action,
// method, and all named control values. It carries enough to re-issue the
// submission as a plain network request.
type FormDef struct {
	Action string
	Method string
	Fields url.Values
}

// HasFields reports whether the form carries any named values. A form
// without fields is replayed as a plain GET.
func (f *FormDef) HasFields() bool { return len(f.Fields) > 0 }

// Encode returns the URL-encoded request body for the form's fields.
func (f *FormDef) Encode() string { return f.Fields.Encode() }

// ParseForm extracts the first <form> from serialized page HTML. It is the
// DOM-snapshot fallback used when in-page evaluation fails; checkbox and
// radio controls contribute their value only when marked checked, selects
// contribute the selected (or first) option, and the action is resolved
// against pageURL.
func ParseForm(html, pageURL string) (*FormDef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("form: parse html: %w", err)
	}

	form := doc.Find("form").First()
	if form.Length() == 0 {
		return nil, fmt.Errorf("form: no form element found")
	}

	def := &FormDef{
		Method: strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "GET"))),
		Fields: url.Values{},
	}
	if def.Method == "" {
		def.Method = "GET"
	}

	def.Action = resolveAction(form.AttrOr("action", ""), pageURL)

	form.Find("input").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		typ := strings.ToLower(sel.AttrOr("type", "text"))
		if typ == "checkbox" || typ == "radio" {
			if _, checked := sel.Attr("checked"); !checked {
				return
			}
		}
		def.Fields.Add(name, sel.AttrOr("value", ""))
	})

	form.Find("select").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		opts := sel.Find("option")
		chosen := opts.FilterFunction(func(_ int, o *goquery.Selection) bool {
			_, ok := o.Attr("selected")
			return ok
		}).First()
		if chosen.Length() == 0 {
			chosen = opts.First()
		}
		if chosen.Length() > 0 {
			def.Fields.Add(name, chosen.AttrOr("value", strings.TrimSpace(chosen.Text())))
		}
	})

	form.Find("textarea").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		def.Fields.Add(name, sel.Text())
	})

	return def, nil
}

// resolveAction resolves a form action against the page URL. An empty
// action submits back to the page itself.
func resolveAction(action, pageURL string) string {
	action = strings.TrimSpace(action)
	if action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(ref).String()
}
