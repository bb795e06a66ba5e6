// Package browsertest provides a scripted in-memory browser for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jobpilot/internal/browser"
)

// Launcher hands out Pages built by NewPageFunc, or one shared Page.
type Launcher struct {
	Page        *Page
	NewPageFunc func() *Page
	NewPageErr  error

	mu     sync.Mutex
	opened []*Page
}

func (l *Launcher) NewPage(ctx context.Context) (browser.Page, error) {
	if l.NewPageErr != nil {
		return nil, l.NewPageErr
	}
	p := l.Page
	if l.NewPageFunc != nil {
		p = l.NewPageFunc()
	}
	if p == nil {
		p = NewPage()
	}
	l.mu.Lock()
	l.opened = append(l.opened, p)
	l.mu.Unlock()
	return p, nil
}

func (l *Launcher) Close() error { return nil }

// Opened returns every page handed out so far.
func (l *Launcher) Opened() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.opened...)
}

// Page is a scripted DOM. Elements are keyed by the exact selector string the
// code under test uses; a comma-separated selector matches any of its parts.
type Page struct {
	mu sync.Mutex

	CurrentURL string
	Body       string
	Elements   map[string][]*Element
	Frames     map[string]*Page

	// Routes maps a URL prefix to a hook run after Navigate lands on it
	Routes map[string]func(p *Page)
	// NavigateFunc replaces the default navigation when set
	NavigateFunc func(ctx context.Context, url string) error
	NavigateErr  error
	EvalFunc     func(js string) (string, error)

	Visited []string
	Cookies []browser.Cookie
	closed  bool
}

func NewPage() *Page {
	return &Page{
		Elements: map[string][]*Element{},
		Frames:   map[string]*Page{},
		Routes:   map[string]func(p *Page){},
	}
}

// Add registers elements under selector and returns the page for chaining.
func (p *Page) Add(selector string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range els {
		el.page = p
	}
	p.Elements[selector] = append(p.Elements[selector], els...)
	return p
}

// Remove drops all elements under selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Elements, selector)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.NavigateFunc != nil {
		if err := p.NavigateFunc(ctx, url); err != nil {
			return err
		}
	} else if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.CurrentURL = url
	p.Visited = append(p.Visited, url)
	var hook func(*Page)
	for prefix, h := range p.Routes {
		if strings.HasPrefix(url, prefix) {
			hook = h
			break
		}
	}
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", browser.ErrPageClosed
	}
	return p.Body, nil
}

func (p *Page) lookup(selector string) []*Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lookup(p.Elements, selector)
}

func lookup(m map[string][]*Element, selector string) []*Element {
	if els, ok := m[selector]; ok {
		return els
	}
	var out []*Element
	for _, part := range strings.Split(selector, ",") {
		out = append(out, m[strings.TrimSpace(part)]...)
	}
	return out
}

func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Find(ctx, selector)
}

func (p *Page) Find(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els := p.lookup(selector)
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return els[0], nil
}

func (p *Page) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toElements(p.lookup(selector)), nil
}

func (p *Page) Frame(ctx context.Context, selector string) (browser.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.Frames[selector]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
}

func (p *Page) SetCookies(cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cookies = append(p.Cookies, cookies...)
	return nil
}

func (p *Page) Eval(js string) (string, error) {
	if p.EvalFunc != nil {
		return p.EvalFunc(js)
	}
	return "", nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Element is a scripted DOM node. OnClick runs after a successful click and
// typically mutates the owning page to the next step.
type Element struct {
	TextValue string
	Attrs     map[string]string
	Hidden    bool
	IsChecked bool
	LabelText string
	Opts      []string
	Children  map[string][]*Element

	ClickErr error
	InputErr error
	FilesErr error
	OnClick  func(p *Page)
	// InputFunc replaces the default typing when set
	InputFunc func(ctx context.Context, text string) error

	mu       sync.Mutex
	page     *Page
	Clicks   int
	Value    string
	Files    []string
	Selected string
}

// NewElement builds an element with optional attributes given as name, value pairs.
func NewElement(text string, attrs ...string) *Element {
	el := &Element{TextValue: text, Attrs: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attrs[attrs[i]] = attrs[i+1]
	}
	if v, ok := el.Attrs["value"]; ok {
		el.Value = v
	}
	return el
}

func toElements(els []*Element) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out
}

func (e *Element) Text() (string, error) { return e.TextValue, nil }

func (e *Element) Attr(name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == "value" {
		return e.Value, e.Value != "", nil
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.mu.Lock()
	e.Clicks++
	if e.Attrs["type"] == "radio" || e.Attrs["type"] == "checkbox" {
		e.IsChecked = true
	}
	e.mu.Unlock()
	if e.OnClick != nil {
		e.OnClick(e.page)
	}
	return nil
}

func (e *Element) Input(ctx context.Context, text string) error {
	if e.InputFunc != nil {
		if err := e.InputFunc(ctx, text); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}
	if e.InputErr != nil {
		return e.InputErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Value = text
	return nil
}

func (e *Element) Visible() bool { return !e.Hidden }

func (e *Element) Checked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.IsChecked
}

func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	if e.FilesErr != nil {
		return e.FilesErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Files = append([]string(nil), paths...)
	return nil
}

func (e *Element) Options() ([]string, error) {
	if e.Opts == nil {
		return nil, errors.New("not a select element")
	}
	return e.Opts, nil
}

func (e *Element) Select(ctx context.Context, optionText string) error {
	for _, o := range e.Opts {
		if o == optionText {
			e.mu.Lock()
			e.Selected = optionText
			e.Value = optionText
			e.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("option %q not found", optionText)
}

func (e *Element) Label() string { return e.LabelText }

func (e *Element) Find(selector string) (browser.Element, error) {
	els := lookup(e.Children, selector)
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return els[0], nil
}

func (e *Element) FindAll(selector string) ([]browser.Element, error) {
	return toElements(lookup(e.Children, selector)), nil
}
