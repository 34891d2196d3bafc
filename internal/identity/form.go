package identity

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/skodaconnect/skodaconnect-sub000/pkg/connect"
)

// FormKind tags the two shapes a sign-in page takes.
type FormKind int

const (
	// FormHTML is a plain form element with hidden inputs and an action.
	FormHTML FormKind = iota
	// FormScript is a page whose form state lives in an inline script's
	// templateModel JSON object.
	FormScript
)

// Form is the extracted state of a sign-in page. Kind selects which half is
// populated: Action and Fields for FormHTML, Template for FormScript.
type Form struct {
	Kind     FormKind
	Action   string
	Fields   map[string]string
	Template map[string]any
}

var templateModelPattern = regexp.MustCompile(`templateModel: (.*?),\n`)

// ParseForm extracts the sign-in form from a page. It looks for the named
// sign-in forms first, then for an inline templateModel script, then for any
// form carrying an action. Pages with neither shape yield a MalformedFormError.
func ParseForm(body []byte) (*Form, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &connect.MalformedFormError{Reason: "page is not parseable HTML"}
	}
	if node := findForm(doc, "emailPasswordForm", "credentialsForm"); node != nil {
		return htmlForm(node)
	}
	if raw, ok := findTemplateModel(doc); ok {
		var template map[string]any
		if err := json.Unmarshal([]byte(raw), &template); err != nil {
			return nil, &connect.MalformedFormError{Reason: "templateModel is not valid JSON"}
		}
		return &Form{Kind: FormScript, Template: template}, nil
	}
	if node := findForm(doc); node != nil {
		return htmlForm(node)
	}
	return nil, &connect.MalformedFormError{Reason: "page contains no sign-in form"}
}

// TemplateString returns the template value under key when it is a string.
func (f *Form) TemplateString(key string) string {
	if f.Template == nil {
		return ""
	}
	value, _ := f.Template[key].(string)
	return value
}

// HMAC returns the request signature the script-shaped form carries.
func (f *Form) HMAC() string { return f.TemplateString("hmac") }

// PostAction returns the submission path segment of a script-shaped form.
func (f *Form) PostAction() string { return f.TemplateString("postAction") }

// TemplateError returns the provider's error code embedded in the template,
// empty when the page reports none.
func (f *Form) TemplateError() string { return f.TemplateString("error") }

func htmlForm(node *html.Node) (*Form, error) {
	action, ok := attr(node, "action")
	if !ok || action == "" {
		return nil, &connect.MalformedFormError{Reason: "sign-in form has no action"}
	}
	form := &Form{Kind: FormHTML, Action: action, Fields: make(map[string]string)}
	walk(node, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "input" {
			return false
		}
		if kind, _ := attr(n, "type"); !strings.EqualFold(kind, "hidden") {
			return false
		}
		name, ok := attr(n, "name")
		if !ok || name == "" {
			return false
		}
		value, _ := attr(n, "value")
		// The provider repeats some hidden fields; their values join with a
		// space, the way the services expect them back.
		if existing, ok := form.Fields[name]; ok {
			value = existing + " " + value
		}
		form.Fields[name] = value
		return false
	})
	return form, nil
}

func findForm(doc *html.Node, ids ...string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "form" {
			return false
		}
		if len(ids) > 0 {
			id, _ := attr(n, "id")
			match := false
			for _, want := range ids {
				if id == want {
					match = true
					break
				}
			}
			if !match {
				return false
			}
		}
		found = n
		return true
	})
	return found
}

func findTemplateModel(doc *html.Node) (string, bool) {
	var raw string
	ok := walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "script" {
			return false
		}
		if _, external := attr(n, "src"); external {
			return false
		}
		match := templateModelPattern.FindStringSubmatch(nodeText(n))
		if match == nil {
			return false
		}
		raw = match[1]
		return true
	})
	return raw, ok
}

// walk visits nodes depth-first until fn reports a stop.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if fn(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walk(c, fn) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
