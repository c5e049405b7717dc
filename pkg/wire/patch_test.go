package wire

import (
	"testing"

	"github.com/loom-ui/loom/pkg/dom"
)

func collect(doc *dom.Document) []dom.Mutation {
	var got []dom.Mutation
	cancel := doc.Observe(func(batch []dom.Mutation) { got = append(got, batch...) })
	doc.Flush()
	cancel()
	return got
}

func TestFromMutationsBasicOps(t *testing.T) {
	doc := dom.NewDocument(dom.NewElement("main"))
	doc.Flush()

	el := dom.NewElement("div")
	doc.Root().AppendChild(el)
	el.SetAttr("class", "card")
	txt := dom.NewText("hi")
	el.AppendChild(txt)
	txt.SetText("bye")
	el.RemoveAttr("class")

	patches := FromMutations(collect(doc))

	wantOps := []PatchOp{PatchInsert, PatchSetAttr, PatchInsert, PatchSetText, PatchRemoveAttr}
	if len(patches) != len(wantOps) {
		t.Fatalf("got %d patches, want %d", len(patches), len(wantOps))
	}
	for i, op := range wantOps {
		if patches[i].Op != op {
			t.Errorf("patch[%d].Op = %v, want %v", i, patches[i].Op, op)
		}
	}
	if patches[0].Node == nil || patches[0].Node.Tag != "div" {
		t.Error("insert patch missing serialized subtree")
	}
}

func TestFromMutationsCollapsesRelocationToMove(t *testing.T) {
	doc := dom.NewDocument(dom.NewElement("main"))
	left := dom.NewElement("div")
	right := dom.NewElement("div")
	doc.Root().AppendChild(left)
	doc.Root().AppendChild(right)
	widget := dom.NewElement("widget")
	left.AppendChild(widget)
	doc.Flush()

	// Relocation: detach plus insert in one batch.
	widget.Detach()
	right.AppendChild(widget)

	patches := FromMutations(collect(doc))

	if len(patches) != 1 {
		t.Fatalf("got %d patches, want 1", len(patches))
	}
	p := patches[0]
	if p.Op != PatchMove || p.NodeID != widget.ID() || p.ParentID != right.ID() {
		t.Errorf("patch = %+v, want move of widget under right", p)
	}
	if p.Node != nil {
		t.Error("move patch carries a serialized subtree")
	}
}

func TestFromMutationsUnmatchedDetachBecomesRemove(t *testing.T) {
	doc := dom.NewDocument(dom.NewElement("main"))
	el := dom.NewElement("div")
	doc.Root().AppendChild(el)
	doc.Flush()

	el.Detach()

	patches := FromMutations(collect(doc))

	if len(patches) != 1 || patches[0].Op != PatchRemove || patches[0].NodeID != el.ID() {
		t.Errorf("patches = %+v, want one remove of el", patches)
	}
}

func TestPatchSetRoundTrip(t *testing.T) {
	ps := &PatchSet{
		Seq: 7,
		Patches: []Patch{
			{Op: PatchSetText, NodeID: 3, Value: "hello"},
			{Op: PatchSetAttr, NodeID: 4, Attr: "href", Value: "/about"},
			{Op: PatchMove, NodeID: 5, ParentID: 1, Index: 2},
			{Op: PatchRemove, NodeID: 6},
			{
				Op: PatchInsert, NodeID: 9, ParentID: 1, Index: 0,
				Node: &NodeWire{
					ID: 9, Kind: 0, Tag: "div",
					Attrs: map[string]string{"class": "card", "id": "x"},
					Children: []*NodeWire{
						{ID: 10, Kind: 1, Text: "inner"},
					},
				},
			},
		},
	}

	got, err := DecodePatchSet(EncodePatchSet(ps))
	if err != nil {
		t.Fatalf("DecodePatchSet: %v", err)
	}
	if got.Seq != 7 {
		t.Errorf("Seq = %d, want 7", got.Seq)
	}
	if len(got.Patches) != len(ps.Patches) {
		t.Fatalf("got %d patches, want %d", len(got.Patches), len(ps.Patches))
	}
	for i, want := range ps.Patches {
		p := got.Patches[i]
		if p.Op != want.Op || p.NodeID != want.NodeID || p.Attr != want.Attr ||
			p.Value != want.Value || p.ParentID != want.ParentID || p.Index != want.Index {
			t.Errorf("patch[%d] = %+v, want %+v", i, p, want)
		}
	}

	tree := got.Patches[4].Node
	if tree == nil || tree.Tag != "div" || tree.Attrs["class"] != "card" {
		t.Fatalf("decoded subtree = %+v", tree)
	}
	if len(tree.Children) != 1 || tree.Children[0].Text != "inner" {
		t.Errorf("decoded child = %+v", tree.Children)
	}
}

func TestDecodePatchSetInvalidOp(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(1) // seq
	e.WriteUvarint(1) // count
	e.WriteByte(0xFF) // bogus op
	e.WriteUvarint(2) // node id

	if _, err := DecodePatchSet(e.Bytes()); err == nil {
		t.Error("decoding an unknown op did not fail")
	}
}
