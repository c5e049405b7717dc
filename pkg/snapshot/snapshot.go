// Package snapshot persists serialized output trees.
//
// A snapshot is a pre-rendered tree encoded with the wire codec, saved
// under a caller-chosen key. The live server writes one per session so
// a reconnecting client can hydrate against the tree it last saw
// instead of receiving a full re-render.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/loom-ui/loom/pkg/dom"
	"github.com/loom-ui/loom/pkg/wire"
)

// ErrNotFound is returned when no snapshot exists under a key.
var ErrNotFound = errors.New("snapshot: not found")

// ErrBadSnapshot is returned when stored bytes fail to decode.
var ErrBadSnapshot = errors.New("snapshot: corrupt data")

// formatVersion prefixes every encoded snapshot. Bump on incompatible
// codec changes.
const formatVersion = 1

// Store is a persistence backend for encoded snapshots.
type Store interface {
	// Save writes data under key, replacing any previous snapshot.
	Save(ctx context.Context, key string, data []byte) error

	// Load reads the snapshot under key. Returns ErrNotFound when
	// none exists.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the snapshot under key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error
}

// Encode serializes a tree rooted at n.
func Encode(n *dom.Node) []byte {
	e := wire.NewEncoder()
	e.WriteByte(formatVersion)
	body := wire.EncodeNode(wire.NodeWireFrom(n))
	e.WriteBytes(body)
	return e.Bytes()
}

// Decode rebuilds a tree from encoded snapshot bytes. The returned
// nodes are fresh and carry new IDs; a snapshot records structure, not
// identity.
func Decode(data []byte) (*dom.Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadSnapshot)
	}
	if data[0] != formatVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrBadSnapshot, data[0])
	}
	w, err := wire.DecodeNode(data[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return materialize(w), nil
}

func materialize(w *wire.NodeWire) *dom.Node {
	var n *dom.Node
	switch dom.Kind(w.Kind) {
	case dom.KindText:
		n = dom.NewText(w.Text)
	case dom.KindGroup:
		n = dom.NewGroup()
	default:
		n = dom.NewElement(w.Tag)
		for k, v := range w.Attrs {
			n.SetAttr(k, v)
		}
	}
	for _, c := range w.Children {
		n.AppendChild(materialize(c))
	}
	return n
}

// SaveTree encodes a tree and saves it under key.
func SaveTree(ctx context.Context, s Store, key string, root *dom.Node) error {
	return s.Save(ctx, key, Encode(root))
}

// LoadTree loads and decodes the tree under key.
func LoadTree(ctx context.Context, s Store, key string) (*dom.Node, error) {
	data, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
