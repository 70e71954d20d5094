// Package manifest models the server-declared description of a remote folder:
// a tree of directories whose leaves carry the expected content hash of a file.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

var (
	ErrNotObject = errors.New("manifest: root is not a json object")
	ErrEmpty     = errors.New("manifest: empty document")
)

// Node is either a leaf (Children == nil) holding a content hash, or a
// directory holding named children. Nodes are immutable once parsed.
type Node struct {
	Hash     string
	Children map[string]*Node
}

func Leaf(hash string) *Node {
	return &Node{Hash: hash}
}

func Dir(children map[string]*Node) *Node {
	if children == nil {
		children = map[string]*Node{}
	}
	return &Node{Children: children}
}

func (n *Node) IsDir() bool {
	return n != nil && n.Children != nil
}

// Parse decodes a folder listing. The document root must be an object.
func Parse(data []byte) (*Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if data[0] != '{' {
		return nil, ErrNotObject
	}

	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	return &root, nil
}

// UnmarshalJSON treats objects as directories and any other value as an
// opaque hash. Strings are unquoted, other scalars keep their json text.
func (n *Node) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrEmpty
	}

	switch data[0] {
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		n.Hash = ""
		n.Children = make(map[string]*Node, len(raw))
		for name, value := range raw {
			child := &Node{}
			if err := child.UnmarshalJSON(value); err != nil {
				return fmt.Errorf("%q: %w", name, err)
			}
			n.Children[name] = child
		}
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n.Hash = s
		n.Children = nil
	default:
		n.Hash = string(data)
		n.Children = nil
	}
	return nil
}

func (n *Node) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("null"), nil
	}
	if n.IsDir() {
		return json.Marshal(n.Children)
	}
	return json.Marshal(n.Hash)
}

// Count returns the number of leaves below n.
func (n *Node) Count() int {
	if !n.IsDir() {
		if n == nil {
			return 0
		}
		return 1
	}
	total := 0
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}

// Walk visits every leaf depth-first in name order with its "/" separated
// path relative to n. Returning false from fn stops the walk.
func (n *Node) Walk(fn func(relPath, hash string) bool) {
	n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(relPath, hash string) bool) bool {
	for _, name := range n.Names() {
		child := n.Children[name]
		rel := name
		if prefix != "" {
			rel = prefix + "/" + name
		}
		if child.IsDir() {
			if !child.walk(rel, fn) {
				return false
			}
			continue
		}
		if child == nil {
			continue
		}
		if !fn(rel, child.Hash) {
			return false
		}
	}
	return true
}

// Names returns the sorted child names of a directory node.
func (n *Node) Names() []string {
	if !n.IsDir() {
		return nil
	}
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Paths returns all leaf paths in walk order.
func (n *Node) Paths() []string {
	paths := make([]string, 0, n.Count())
	n.Walk(func(relPath, _ string) bool {
		paths = append(paths, relPath)
		return true
	})
	return paths
}

// Lookup finds the hash declared for relPath by walking the tree and
// comparing reconstructed paths.
func (n *Node) Lookup(relPath string) (hash string, ok bool) {
	n.Walk(func(rel, h string) bool {
		if rel == relPath {
			hash, ok = h, true
			return false
		}
		return true
	})
	return hash, ok
}
