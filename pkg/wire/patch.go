package wire

import (
	"errors"
	"sort"

	"github.com/loom-ui/loom/pkg/dom"
)

// PatchOp is the type of one patch operation.
type PatchOp uint8

const (
	PatchSetText    PatchOp = 0x01 // update a text node's value
	PatchSetAttr    PatchOp = 0x02 // set an attribute
	PatchRemoveAttr PatchOp = 0x03 // remove an attribute
	PatchInsert     PatchOp = 0x04 // insert a new subtree
	PatchRemove     PatchOp = 0x05 // remove a subtree
	PatchMove       PatchOp = 0x06 // reposition an existing subtree
	PatchReplace    PatchOp = 0x07 // swap a subtree for a new one
)

func (op PatchOp) String() string {
	switch op {
	case PatchSetText:
		return "SetText"
	case PatchSetAttr:
		return "SetAttr"
	case PatchRemoveAttr:
		return "RemoveAttr"
	case PatchInsert:
		return "Insert"
	case PatchRemove:
		return "Remove"
	case PatchMove:
		return "Move"
	case PatchReplace:
		return "Replace"
	default:
		return "Unknown"
	}
}

// ErrInvalidPatchOp is returned when decoding meets an unknown op.
var ErrInvalidPatchOp = errors.New("wire: invalid patch op")

// NodeWire is the serialized form of an output-tree subtree.
type NodeWire struct {
	ID       uint64
	Kind     uint8
	Tag      string
	Text     string
	Attrs    map[string]string
	Children []*NodeWire
}

// NodeWireFrom serializes a subtree.
func NodeWireFrom(n *dom.Node) *NodeWire {
	if n == nil {
		return nil
	}
	w := &NodeWire{
		ID:    n.ID(),
		Kind:  uint8(n.Kind()),
		Tag:   n.Tag(),
		Text:  n.Text(),
		Attrs: n.Attrs(),
	}
	for _, c := range n.Children() {
		w.Children = append(w.Children, NodeWireFrom(c))
	}
	return w
}

// Patch is one tree operation addressed by node ID.
type Patch struct {
	Op       PatchOp
	NodeID   uint64
	ParentID uint64    // Insert/Move/Replace
	Index    int       // Insert/Move/Replace
	Attr     string    // SetAttr/RemoveAttr
	Value    string    // SetText/SetAttr
	Node     *NodeWire // Insert/Replace
}

// PatchSet is the batch of patches produced by one flush, with a
// session sequence number.
type PatchSet struct {
	Seq     uint64
	Patches []Patch
}

// FromMutations converts a flush's mutation records into patches.
//
// A detach followed by an insertion of the same node within one batch
// is a relocation and collapses into a single Move, so the client keeps
// the live subtree instead of rebuilding it. A detach never matched by
// an insertion becomes a Remove, emitted at the end of the batch.
func FromMutations(muts []dom.Mutation) []Patch {
	out := make([]Patch, 0, len(muts))
	pendingDetach := make(map[uint64]bool)
	detachOrder := make([]uint64, 0, 2)

	for _, m := range muts {
		switch m.Op {
		case dom.OpSetText:
			out = append(out, Patch{Op: PatchSetText, NodeID: m.Node.ID(), Value: m.Value})

		case dom.OpSetAttr:
			out = append(out, Patch{Op: PatchSetAttr, NodeID: m.Node.ID(), Attr: m.Attr, Value: m.Value})

		case dom.OpRemoveAttr:
			out = append(out, Patch{Op: PatchRemoveAttr, NodeID: m.Node.ID(), Attr: m.Attr})

		case dom.OpDetach:
			id := m.Node.ID()
			if !pendingDetach[id] {
				pendingDetach[id] = true
				detachOrder = append(detachOrder, id)
			}

		case dom.OpInsert:
			id := m.Node.ID()
			if pendingDetach[id] {
				delete(pendingDetach, id)
				out = append(out, Patch{Op: PatchMove, NodeID: id, ParentID: m.Parent.ID(), Index: m.Index})
				continue
			}
			out = append(out, Patch{Op: PatchInsert, NodeID: id, ParentID: m.Parent.ID(), Index: m.Index, Node: NodeWireFrom(m.Node)})

		case dom.OpMove:
			out = append(out, Patch{Op: PatchMove, NodeID: m.Node.ID(), ParentID: m.Parent.ID(), Index: m.Index})

		case dom.OpRemove:
			out = append(out, Patch{Op: PatchRemove, NodeID: m.Node.ID()})

		case dom.OpReplace:
			out = append(out, Patch{
				Op:       PatchReplace,
				NodeID:   m.Replaced.ID(),
				ParentID: m.Parent.ID(),
				Index:    m.Index,
				Node:     NodeWireFrom(m.Node),
			})
		}
	}

	for _, id := range detachOrder {
		if pendingDetach[id] {
			out = append(out, Patch{Op: PatchRemove, NodeID: id})
		}
	}

	return out
}

// EncodePatchSet encodes a patch set to bytes.
func EncodePatchSet(ps *PatchSet) []byte {
	e := NewEncoder()
	e.WriteUvarint(ps.Seq)
	e.WriteUvarint(uint64(len(ps.Patches)))
	for i := range ps.Patches {
		encodePatch(e, &ps.Patches[i])
	}
	return e.Bytes()
}

func encodePatch(e *Encoder, p *Patch) {
	e.WriteByte(byte(p.Op))
	e.WriteUvarint(p.NodeID)

	switch p.Op {
	case PatchSetText:
		e.WriteString(p.Value)

	case PatchSetAttr:
		e.WriteString(p.Attr)
		e.WriteString(p.Value)

	case PatchRemoveAttr:
		e.WriteString(p.Attr)

	case PatchInsert:
		e.WriteUvarint(p.ParentID)
		e.WriteUvarint(uint64(p.Index))
		encodeNodeWire(e, p.Node)

	case PatchRemove:
		// Node ID is sufficient.

	case PatchMove:
		e.WriteUvarint(p.ParentID)
		e.WriteUvarint(uint64(p.Index))

	case PatchReplace:
		e.WriteUvarint(p.ParentID)
		e.WriteUvarint(uint64(p.Index))
		encodeNodeWire(e, p.Node)
	}
}

// DecodePatchSet decodes a patch set from bytes.
func DecodePatchSet(data []byte) (*PatchSet, error) {
	d := NewDecoder(data)

	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}

	patches := make([]Patch, count)
	for i := 0; i < count; i++ {
		if err := decodePatch(d, &patches[i]); err != nil {
			return nil, err
		}
	}

	return &PatchSet{Seq: seq, Patches: patches}, nil
}

func decodePatch(d *Decoder, p *Patch) error {
	opByte, err := d.ReadByte()
	if err != nil {
		return err
	}
	p.Op = PatchOp(opByte)

	if p.NodeID, err = d.ReadUvarint(); err != nil {
		return err
	}

	switch p.Op {
	case PatchSetText:
		p.Value, err = d.ReadString()

	case PatchSetAttr:
		if p.Attr, err = d.ReadString(); err != nil {
			return err
		}
		p.Value, err = d.ReadString()

	case PatchRemoveAttr:
		p.Attr, err = d.ReadString()

	case PatchInsert, PatchReplace:
		if err = decodePlacement(d, p); err != nil {
			return err
		}
		p.Node, err = decodeNodeWire(d)

	case PatchRemove:

	case PatchMove:
		err = decodePlacement(d, p)

	default:
		return ErrInvalidPatchOp
	}
	return err
}

func decodePlacement(d *Decoder, p *Patch) error {
	parent, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	idx, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	p.ParentID = parent
	p.Index = int(idx)
	return nil
}

// EncodeNode encodes a single serialized subtree to bytes.
func EncodeNode(n *NodeWire) []byte {
	e := NewEncoder()
	encodeNodeWire(e, n)
	return e.Bytes()
}

// DecodeNode decodes a single serialized subtree from bytes.
func DecodeNode(data []byte) (*NodeWire, error) {
	return decodeNodeWire(NewDecoder(data))
}

func encodeNodeWire(e *Encoder, n *NodeWire) {
	e.WriteUvarint(n.ID)
	e.WriteByte(n.Kind)
	e.WriteString(n.Tag)
	e.WriteString(n.Text)

	// Attributes are sorted for a deterministic encoding.
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.WriteUvarint(uint64(len(keys)))
	for _, k := range keys {
		e.WriteString(k)
		e.WriteString(n.Attrs[k])
	}

	e.WriteUvarint(uint64(len(n.Children)))
	for _, c := range n.Children {
		encodeNodeWire(e, c)
	}
}

func decodeNodeWire(d *Decoder) (*NodeWire, error) {
	n := &NodeWire{}
	var err error

	if n.ID, err = d.ReadUvarint(); err != nil {
		return nil, err
	}
	if n.Kind, err = d.ReadByte(); err != nil {
		return nil, err
	}
	if n.Tag, err = d.ReadString(); err != nil {
		return nil, err
	}
	if n.Text, err = d.ReadString(); err != nil {
		return nil, err
	}

	attrCount, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	if attrCount > 0 {
		n.Attrs = make(map[string]string, attrCount)
		for i := 0; i < attrCount; i++ {
			k, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			v, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			n.Attrs[k] = v
		}
	}

	childCount, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < childCount; i++ {
		c, err := decodeNodeWire(d)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}

	return n, nil
}
