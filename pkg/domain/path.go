package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TreePath is the ordered sequence of node identifiers from a tree's root down
// to (and including) one node. It is the structured form of the materialized
// path column; the wire and storage representation is the dot-terminated
// string produced by String ("1.3.7."). Keeping the structured form as the
// working representation means prefix matching and cycle checks compare
// identifiers, not raw substrings.
type TreePath []int64

// ParsePath decodes a dot-terminated materialized path string ("1.3.7.").
// The empty string decodes to a nil path, which marks a node whose path has
// not been assigned yet (phase one of the two-phase create).
func ParsePath(raw string) (TreePath, error) {
	if raw == "" {
		return nil, nil
	}
	if !strings.HasSuffix(raw, ".") {
		return nil, fmt.Errorf("malformed path %q: missing terminal dot", raw)
	}
	segments := strings.Split(strings.TrimSuffix(raw, "."), ".")
	path := make(TreePath, 0, len(segments))
	for _, seg := range segments {
		id, err := strconv.ParseInt(seg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed path %q: segment %q: %w", raw, seg, err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("malformed path %q: non-positive id %d", raw, id)
		}
		path = append(path, id)
	}
	return path, nil
}

// String renders the canonical dot-terminated encoding. A nil path renders as
// the empty string.
func (p TreePath) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, id := range p {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('.')
	}
	return b.String()
}

// Level is the node's depth: segments minus one. Roots are level 0.
func (p TreePath) Level() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// NodeID returns the trailing identifier, the node the path belongs to.
// Zero for an unassigned path.
func (p TreePath) NodeID() int64 {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1]
}

// IsZero reports whether the path has not been assigned.
func (p TreePath) IsZero() bool { return len(p) == 0 }

// Child returns a new path extending p with id. p is not modified.
func (p TreePath) Child(id int64) TreePath {
	child := make(TreePath, len(p), len(p)+1)
	copy(child, p)
	return append(child, id)
}

// Clone returns an independent copy of p.
func (p TreePath) Clone() TreePath {
	if p == nil {
		return nil
	}
	out := make(TreePath, len(p))
	copy(out, p)
	return out
}

// Equal reports whether both paths encode the same ancestor chain.
func (p TreePath) Equal(other TreePath) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p lies inside the subtree rooted at prefix, i.e.
// prefix's segments are the leading segments of p. Every path is a prefix of
// itself.
func (p TreePath) HasPrefix(prefix TreePath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Contains reports whether id appears anywhere on the ancestor chain. This is
// the cycle test: a candidate parent whose path contains the node's own id is
// the node itself or one of its descendants.
func (p TreePath) Contains(id int64) bool {
	for _, seg := range p {
		if seg == id {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the path as its canonical string form.
func (p TreePath) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON decodes the canonical string form.
func (p *TreePath) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("path must be a JSON string: %w", err)
	}
	parsed, err := ParsePath(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
