// Package hydrate binds a reactivity graph onto an output tree that was
// produced by a prior, non-reactive render of the same template.
//
// The template is invoked off-tree, then both trees are walked in
// structural lock-step: wherever shapes agree, the fresh node's reactive
// bindings are transplanted onto the pre-existing node; wherever they
// disagree, the pre-existing subtree is replaced with the fresh
// rendering. Mismatches are recoverable, logged, and counted.
package hydrate

import (
	"errors"
	"log/slog"

	"github.com/loom-ui/loom/pkg/dom"
	"github.com/loom-ui/loom/pkg/view"
)

// StaticAttr marks a subtree as static: hydration skips it without
// structural comparison.
const StaticAttr = "data-static"

var (
	// ErrNilTree is returned when the pre-existing tree root is nil.
	ErrNilTree = errors.New("hydrate: nil existing tree")

	// ErrEmptyTemplate is returned when the template renders nothing.
	ErrEmptyTemplate = errors.New("hydrate: template rendered no output")
)

// Report counts what one Bind pass did.
type Report struct {
	// Matched is the number of nodes bound in place.
	Matched int

	// Replaced is the number of subtrees rebuilt because the existing
	// structure disagreed with the template's.
	Replaced int

	// StaticSkipped is the number of subtrees skipped via StaticAttr.
	StaticSkipped int
}

// Option configures a Bind pass.
type Option func(*binder)

// WithLogger sets the logger for mismatch reports.
func WithLogger(log *slog.Logger) Option {
	return func(b *binder) { b.log = log }
}

// Bind hydrates existing against a fresh invocation of tpl and returns
// the bound root. When the roots themselves disagree the fresh
// rendering is returned in place of the existing tree.
//
// Bindings created by the template run under the caller's ambient
// scope, so disposing that scope unwinds the hydrated subscriptions.
func Bind(existing *dom.Node, tpl view.Template, opts ...Option) (*dom.Node, *Report, error) {
	if existing == nil {
		return nil, nil, ErrNilTree
	}

	fresh := tpl()
	if fresh == nil {
		return nil, nil, ErrEmptyTemplate
	}

	b := &binder{log: slog.Default(), report: &Report{}}
	for _, opt := range opts {
		opt(b)
	}

	root := b.walk(existing, fresh)
	return root, b.report, nil
}

type binder struct {
	log    *slog.Logger
	report *Report
}

// walk reconciles one position and returns the node now occupying it.
func (b *binder) walk(existing, fresh *dom.Node) *dom.Node {
	if _, static := existing.Attr(StaticAttr); static {
		b.report.StaticSkipped++
		return existing
	}

	if !shapesMatch(existing, fresh) {
		return b.replace(existing, fresh)
	}

	// The child shapes must agree before any binding is repointed:
	// a reconciler host retargeted at a subtree that is then replaced
	// would keep mutating the discarded copy.
	ec := existing.Children()
	fc := fresh.Children()
	if len(ec) != len(fc) {
		return b.replace(existing, fresh)
	}

	b.report.Matched++

	// A static text disagreement is content drift, not a structural
	// mismatch: the template's value wins.
	if fresh.Kind() == dom.KindText && existing.Text() != fresh.Text() {
		existing.SetText(fresh.Text())
	}

	for _, bind := range fresh.Bindings() {
		bind.Retarget(existing)
	}

	for i := range fc {
		b.walk(ec[i], fc[i])
	}

	return existing
}

func (b *binder) replace(existing, fresh *dom.Node) *dom.Node {
	b.report.Replaced++
	b.log.Warn("hydration mismatch, rebuilding subtree",
		"expected_kind", fresh.Kind().String(),
		"expected_tag", fresh.Tag(),
		"found_kind", existing.Kind().String(),
		"found_tag", existing.Tag())

	if existing.Parent() != nil {
		existing.ReplaceWith(fresh)
	}
	return fresh
}

func shapesMatch(existing, fresh *dom.Node) bool {
	if existing.Kind() != fresh.Kind() {
		return false
	}
	if fresh.Kind() == dom.KindElement && existing.Tag() != fresh.Tag() {
		return false
	}
	return true
}
