package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"seehuhn.de/go/geom/rect"

	"pdf-invert/internal/overlay"
)

// Resource name prefixes for entries added by this package.
const (
	gstatePrefix = "GSInv"
	formPrefix   = "FmInv"
)

// AddExtGState registers gs in the page's /ExtGState resources and returns
// the name it was registered under. Inherited or shared resource dictionaries
// are copied onto the page first; they are never modified in place.
func (d *Document) AddExtGState(pageNr int, gs overlay.GState) (string, error) {
	ref, err := d.gstateRef(gs)
	if err != nil {
		return "", err
	}
	return d.addResource(pageNr, "ExtGState", gstatePrefix, ref)
}

func (d *Document) gstateRef(gs overlay.GState) (types.IndirectRef, error) {
	if ref, ok := d.gstates[gs]; ok {
		return ref, nil
	}

	dict := types.Dict{
		"Type": types.Name("ExtGState"),
		"ca":   types.Float(gs.FillAlpha),
		"CA":   types.Float(gs.StrokeAlpha),
	}
	if gs.BlendMode != "" {
		dict["BM"] = types.Name(gs.BlendMode)
	}

	ref, err := d.ctx.IndRefForNewObject(dict)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("register ExtGState: %w", err)
	}
	d.gstates[gs] = *ref
	return *ref, nil
}

// AddXObject creates a form XObject covering bbox, drawing content inside the
// given transparency group, and registers it in the page's /XObject
// resources.
func (d *Document) AddXObject(pageNr int, bbox overlay.Rect, group overlay.Group, content []byte) (string, error) {
	dict := types.Dict{
		"Type":    types.Name("XObject"),
		"Subtype": types.Name("Form"),
		"BBox": types.Array{
			types.Float(bbox.X),
			types.Float(bbox.Y),
			types.Float(bbox.X + bbox.W),
			types.Float(bbox.Y + bbox.H),
		},
		"Group": types.Dict{
			"Type": types.Name("Group"),
			"S":    types.Name("Transparency"),
			"CS":   types.Name(group.ColorSpace),
			"I":    types.Boolean(group.Isolated),
			"K":    types.Boolean(group.Knockout),
		},
		"Resources": types.NewDict(),
	}

	ref, err := d.newStream(dict, content)
	if err != nil {
		return "", err
	}
	return d.addResource(pageNr, "XObject", formPrefix, ref)
}

func (d *Document) addResource(pageNr int, category, prefix string, ref types.IndirectRef) (string, error) {
	pageDict, _, inh, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", pageNr, err)
	}

	res, err := d.ownResources(pageDict, inh)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", pageNr, err)
	}

	sub := types.NewDict()
	if obj, found := res.Find(category); found && obj != nil {
		existing, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return "", fmt.Errorf("page %d: /%s: %w", pageNr, category, err)
		}
		sub = copyDict(existing)
	}

	name := uniqueName(sub, prefix)
	sub[name] = ref
	res[category] = sub
	pageDict["Resources"] = res
	return name, nil
}

// ownResources returns a private copy of the resources in effect for a page.
func (d *Document) ownResources(pageDict types.Dict, inh *model.InheritedPageAttrs) (types.Dict, error) {
	if obj, found := pageDict.Find("Resources"); found && obj != nil {
		res, err := d.ctx.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("/Resources: %w", err)
		}
		if res != nil {
			return copyDict(res), nil
		}
	}
	if inh != nil && inh.Resources != nil {
		return copyDict(inh.Resources), nil
	}
	return types.NewDict(), nil
}

func copyDict(d types.Dict) types.Dict {
	c := types.NewDict()
	for k, v := range d {
		c[k] = v
	}
	return c
}

func uniqueName(d types.Dict, prefix string) string {
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if _, taken := d[name]; !taken {
			return name
		}
	}
}

// PrependContent adds content in front of the page's existing content.
func (d *Document) PrependContent(pageNr int, content []byte) error {
	return d.addContent(pageNr, content, true)
}

// AppendContent adds content after the page's existing content.
func (d *Document) AppendContent(pageNr int, content []byte) error {
	return d.addContent(pageNr, content, false)
}

func (d *Document) addContent(pageNr int, content []byte, prepend bool) error {
	pageDict, _, _, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return fmt.Errorf("page %d: %w", pageNr, err)
	}

	ref, err := d.newStream(types.NewDict(), content)
	if err != nil {
		return err
	}

	var streams types.Array
	if obj, found := pageDict.Find("Contents"); found && obj != nil {
		switch o := obj.(type) {
		case types.IndirectRef:
			target, err := d.ctx.Dereference(o)
			if err != nil {
				return fmt.Errorf("page %d: /Contents: %w", pageNr, err)
			}
			if arr, ok := target.(types.Array); ok {
				streams = append(streams, arr...)
			} else {
				streams = types.Array{o}
			}
		case types.Array:
			streams = append(streams, o...)
		default:
			return fmt.Errorf("page %d: unexpected /Contents type %T", pageNr, obj)
		}
	}

	if prepend {
		streams = append(types.Array{ref}, streams...)
	} else {
		streams = append(streams, ref)
	}
	pageDict["Contents"] = streams
	return nil
}

func (d *Document) newStream(dict types.Dict, content []byte) (types.IndirectRef, error) {
	sd := types.NewStreamDict(dict, 0, nil, nil, nil)
	sd.Content = content
	if err := sd.Encode(); err != nil {
		return types.IndirectRef{}, fmt.Errorf("encode stream: %w", err)
	}
	ref, err := d.ctx.IndRefForNewObject(sd)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("register stream: %w", err)
	}
	return *ref, nil
}

// InsertBlankPageAfter inserts an empty page directly after pageNr, copying
// its MediaBox and CropBox. It returns the new page's number.
func (d *Document) InsertBlankPageAfter(pageNr int) (int, error) {
	pageDict, pageRef, _, err := d.ctx.PageDict(pageNr, false)
	if err != nil {
		return 0, fmt.Errorf("page %d: %w", pageNr, err)
	}
	if pageRef == nil {
		return 0, fmt.Errorf("page %d: not an indirect object", pageNr)
	}

	media, crop, err := d.pageBoxes(pageNr)
	if err != nil {
		return 0, err
	}

	parentRef := pageDict.IndirectRefEntry("Parent")
	if parentRef == nil {
		return 0, fmt.Errorf("page %d: missing /Parent", pageNr)
	}
	parent, err := d.ctx.DereferenceDict(*parentRef)
	if err != nil || parent == nil {
		return 0, fmt.Errorf("page %d: bad /Parent: %v", pageNr, err)
	}

	kids, err := d.ctx.DereferenceArray(parent["Kids"])
	if err != nil {
		return 0, fmt.Errorf("page %d: parent /Kids: %w", pageNr, err)
	}
	idx := -1
	for i, kid := range kids {
		if ir, ok := kid.(types.IndirectRef); ok && ir.ObjectNumber == pageRef.ObjectNumber {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("page %d: not listed in parent /Kids", pageNr)
	}

	blank := types.Dict{
		"Type":      types.Name("Page"),
		"Parent":    *parentRef,
		"MediaBox":  rectangleArray(media),
		"Resources": types.NewDict(),
	}
	if crop != nil {
		blank["CropBox"] = rectangleArray(crop)
	}
	blankRef, err := d.ctx.IndRefForNewObject(blank)
	if err != nil {
		return 0, fmt.Errorf("register blank page: %w", err)
	}

	newKids := make(types.Array, 0, len(kids)+1)
	newKids = append(newKids, kids[:idx+1]...)
	newKids = append(newKids, *blankRef)
	newKids = append(newKids, kids[idx+1:]...)
	parent["Kids"] = newKids

	if err := d.bumpCounts(parent); err != nil {
		return 0, err
	}
	d.ctx.PageCount++
	return pageNr + 1, nil
}

// bumpCounts increments /Count on node and every ancestor.
func (d *Document) bumpCounts(node types.Dict) error {
	for depth := 0; node != nil; depth++ {
		if depth > maxTreeDepth {
			return fmt.Errorf("page tree deeper than %d levels", maxTreeDepth)
		}
		obj, err := d.ctx.Dereference(node["Count"])
		if err != nil {
			return fmt.Errorf("page tree /Count: %w", err)
		}
		count, ok := obj.(types.Integer)
		if !ok {
			return fmt.Errorf("page tree /Count has type %T", obj)
		}
		node["Count"] = count + 1

		parentRef := node.IndirectRefEntry("Parent")
		if parentRef == nil {
			return nil
		}
		if node, err = d.ctx.DereferenceDict(*parentRef); err != nil {
			return fmt.Errorf("page tree /Parent: %w", err)
		}
	}
	return nil
}

func rectangleArray(r *types.Rectangle) types.Array {
	return types.Array{
		types.Float(r.LL.X),
		types.Float(r.LL.Y),
		types.Float(r.UR.X),
		types.Float(r.UR.Y),
	}
}

func boxOf(r *types.Rectangle) rect.Rect {
	return rect.Rect{LLx: r.LL.X, LLy: r.LL.Y, URx: r.UR.X, URy: r.UR.Y}
}
