// Package browser is the page-driving capability the automation flows run on.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrPageClosed      = errors.New("page closed")
)

// Launcher hands out pages. Each page is owned by one caller until closed.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Cookie is a session cookie replayed into a page
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// Page is a browser tab or frame. Find and FindAll look at the current DOM
// without waiting; WaitFor polls until the selector appears or timeout.
// Elements returned by a lookup stay bound to the lookup's ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	HTML() (string, error)
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Frame returns the document inside the iframe matching selector
	Frame(ctx context.Context, selector string) (Page, error)
	SetCookies(cookies []Cookie) error
	Eval(js string) (string, error)
	Close() error
}

// Element is a DOM node on a Page
type Element interface {
	Text() (string, error)
	Attr(name string) (string, bool, error)
	Click(ctx context.Context) error
	// Input replaces the element's value with text
	Input(ctx context.Context, text string) error
	Visible() bool
	Checked() bool
	SetFiles(ctx context.Context, paths []string) error
	// Options lists the option texts of a select element
	Options() ([]string, error)
	Select(ctx context.Context, optionText string) error
	// Label is the text of the element's associated label, if any
	Label() string
	Find(selector string) (Element, error)
	FindAll(selector string) ([]Element, error)
}

// Editable reports whether el accepts input: not disabled and not readonly.
func Editable(el Element) bool {
	for _, name := range []string{"disabled", "readonly"} {
		if _, ok, err := el.Attr(name); err != nil || ok {
			return false
		}
	}
	for _, name := range []string{"aria-disabled", "aria-readonly"} {
		if v, _, _ := el.Attr(name); v == "true" {
			return false
		}
	}
	return true
}

// AttrOr returns the attribute value or fallback when missing or unreadable.
func AttrOr(el Element, name, fallback string) string {
	v, ok, err := el.Attr(name)
	if err != nil || !ok {
		return fallback
	}
	return v
}
