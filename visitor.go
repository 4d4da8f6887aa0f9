package vfs

import (
	"context"
	"sync"

	"github.com/mwantia/vfs/v2/data"
)

// DefaultMaxDepth bounds the recursion of a visit.
const DefaultMaxDepth = 256

// VisitorAttributes control which handlers a visit reports and descends into.
type VisitorAttributes struct {
	IncludeRoot   bool
	LeavesOnly    bool
	IgnoreErrors  bool
	IncludeHidden bool
	// RecurseFilter decides whether to descend into a non-leaf child.
	// A nil filter descends into every directory.
	RecurseFilter func(ctx context.Context, vf *VirtualFile) bool
	// MaxDepth bounds how deep the visit descends; 0 means DefaultMaxDepth.
	MaxDepth int
}

// RecurseAll accepts every directory.
func RecurseAll(context.Context, *VirtualFile) bool {
	return true
}

// RecurseNone rejects every directory, limiting a visit to direct children.
func RecurseNone(context.Context, *VirtualFile) bool {
	return false
}

var (
	// DefaultAttributes visit every file and folder below the start.
	DefaultAttributes = VisitorAttributes{}
	// LeavesOnlyAttributes visit every leaf below the start.
	LeavesOnlyAttributes = VisitorAttributes{LeavesOnly: true}
	// RecursiveAttributes visit the whole tree with an explicit filter.
	RecursiveAttributes = VisitorAttributes{RecurseFilter: RecurseAll}
	// RecursiveLeavesOnlyAttributes visit every leaf of the whole tree with an explicit filter.
	RecursiveLeavesOnlyAttributes = VisitorAttributes{LeavesOnly: true, RecurseFilter: RecurseAll}
	// ChildrenAttributes visit the direct children, directories included.
	ChildrenAttributes = VisitorAttributes{RecurseFilter: RecurseNone}
	// LeafChildrenAttributes visit the direct leaf children.
	LeafChildrenAttributes = VisitorAttributes{LeavesOnly: true, RecurseFilter: RecurseNone}
)

func (va VisitorAttributes) maxDepth() int {
	if va.MaxDepth > 0 {
		return va.MaxDepth
	}
	return DefaultMaxDepth
}

// Visitor receives each visited file.
// The view is closed after Visit returns; use Clone to retain it.
type Visitor interface {
	Attributes() VisitorAttributes
	Visit(ctx context.Context, vf *VirtualFile) error
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc struct {
	Attrs VisitorAttributes
	Fn    func(ctx context.Context, vf *VirtualFile) error
}

func (v VisitorFunc) Attributes() VisitorAttributes {
	return v.Attrs
}

func (v VisitorFunc) Visit(ctx context.Context, vf *VirtualFile) error {
	return v.Fn(ctx, vf)
}

// FilterVisitor passes the files accepted by Filter on to Visitor.
// Filtering does not affect which directories are descended into.
type FilterVisitor struct {
	Visitor Visitor
	Filter  func(ctx context.Context, vf *VirtualFile) bool
}

func (fv FilterVisitor) Attributes() VisitorAttributes {
	return fv.Visitor.Attributes()
}

func (fv FilterVisitor) Visit(ctx context.Context, vf *VirtualFile) error {
	if fv.Filter != nil && !fv.Filter(ctx, vf) {
		return nil
	}
	return fv.Visitor.Visit(ctx, vf)
}

// CollectingVisitor retains every visited file that passes Filter.
type CollectingVisitor struct {
	Attrs  VisitorAttributes
	Filter func(vf *VirtualFile) bool

	mu    sync.Mutex
	files []*VirtualFile
}

func NewCollectingVisitor(attrs VisitorAttributes) *CollectingVisitor {
	return &CollectingVisitor{Attrs: attrs}
}

func (cv *CollectingVisitor) Attributes() VisitorAttributes {
	return cv.Attrs
}

func (cv *CollectingVisitor) Visit(ctx context.Context, vf *VirtualFile) error {
	if cv.Filter != nil && !cv.Filter(vf) {
		return nil
	}

	retained, err := vf.Clone()
	if err != nil {
		return err
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()

	cv.files = append(cv.files, retained)
	return nil
}

// Files returns the collected files; the caller owns them.
func (cv *CollectingVisitor) Files() []*VirtualFile {
	cv.mu.Lock()
	defer cv.mu.Unlock()

	return cv.files
}

// Close releases every collected file.
func (cv *CollectingVisitor) Close() error {
	cv.mu.Lock()
	files := cv.files
	cv.files = nil
	cv.mu.Unlock()

	return CloseAll(files)
}

// Walk runs the pre-order visit of start within c.
func Walk(ctx context.Context, c Context, start Handler, visitor Visitor) error {
	attrs := visitor.Attributes()

	vf, err := start.VirtualFile()
	if err != nil {
		return err
	}
	defer vf.Close()

	if attrs.IncludeRoot {
		if err := visitor.Visit(ctx, vf); err != nil {
			return err
		}
	}

	return walkChildren(ctx, c, start, visitor, &attrs, 0)
}

func walkChildren(ctx context.Context, c Context, h Handler, visitor Visitor, attrs *VisitorAttributes, depth int) error {
	if depth >= attrs.maxDepth() {
		return data.IOFailure(data.RecursionLimit(h.PathName(), attrs.maxDepth()), h.PathName())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := c.Children(ctx, h, attrs.IgnoreErrors)
	if err != nil {
		return skipOrFail(attrs, err)
	}

	for _, child := range children {
		if err := walkChild(ctx, c, child, visitor, attrs, depth); err != nil {
			return err
		}
	}

	return nil
}

func walkChild(ctx context.Context, c Context, child Handler, visitor Visitor, attrs *VisitorAttributes, depth int) error {
	vf, err := child.VirtualFile()
	if err != nil {
		return skipOrFail(attrs, err)
	}
	defer vf.Close()

	hidden, err := child.IsHidden(ctx)
	if err != nil {
		return skipOrFail(attrs, err)
	}
	if hidden && !attrs.IncludeHidden {
		return nil
	}

	leaf, err := child.IsLeaf(ctx)
	if err != nil {
		return skipOrFail(attrs, err)
	}

	if leaf || !attrs.LeavesOnly {
		if err := visitor.Visit(ctx, vf); err != nil {
			return err
		}
	}

	if leaf || (attrs.RecurseFilter != nil && !attrs.RecurseFilter(ctx, vf)) {
		return nil
	}

	return walkChildren(ctx, c, child, visitor, attrs, depth+1)
}

// skipOrFail drops backend failures when errors are ignored.
// Visitor errors, cancellation and the recursion limit always propagate.
func skipOrFail(attrs *VisitorAttributes, err error) error {
	if attrs.IgnoreErrors && data.Skippable(err) {
		return nil
	}
	return err
}
