package domain

import (
	"encoding/json"
	"testing"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    TreePath
		wantErr bool
	}{
		{name: "empty is unassigned", raw: "", want: nil},
		{name: "root", raw: "1.", want: TreePath{1}},
		{name: "chain", raw: "1.3.7.", want: TreePath{1, 3, 7}},
		{name: "missing terminal dot", raw: "1.3", wantErr: true},
		{name: "non numeric segment", raw: "1.x.", wantErr: true},
		{name: "zero id", raw: "0.", wantErr: true},
		{name: "negative id", raw: "1.-2.", wantErr: true},
		{name: "empty segment", raw: "1..2.", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePath(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParsePath(%q) succeeded, want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) failed: %v", tc.raw, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParsePath(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestPathStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"", "1.", "1.2.", "10.20.30."} {
		p, err := ParsePath(raw)
		if err != nil {
			t.Fatalf("ParsePath(%q) failed: %v", raw, err)
		}
		if got := p.String(); got != raw {
			t.Fatalf("round trip of %q produced %q", raw, got)
		}
	}
}

func TestPathLevelAndNodeID(t *testing.T) {
	cases := []struct {
		path   TreePath
		level  int
		nodeID int64
	}{
		{path: nil, level: 0, nodeID: 0},
		{path: TreePath{1}, level: 0, nodeID: 1},
		{path: TreePath{1, 2}, level: 1, nodeID: 2},
		{path: TreePath{1, 2, 3}, level: 2, nodeID: 3},
	}
	for _, tc := range cases {
		if got := tc.path.Level(); got != tc.level {
			t.Errorf("Level(%v) = %d, want %d", tc.path, got, tc.level)
		}
		if got := tc.path.NodeID(); got != tc.nodeID {
			t.Errorf("NodeID(%v) = %d, want %d", tc.path, got, tc.nodeID)
		}
	}
}

func TestPathChildDoesNotAliasParent(t *testing.T) {
	parent := TreePath{1, 2}
	child := parent.Child(3)
	if !child.Equal(TreePath{1, 2, 3}) {
		t.Fatalf("Child = %v, want 1.2.3.", child)
	}
	other := parent.Child(4)
	if !child.Equal(TreePath{1, 2, 3}) {
		t.Fatalf("Child mutated by sibling derivation: %v vs %v", child, other)
	}
}

func TestPathHasPrefix(t *testing.T) {
	p := TreePath{1, 2, 3}
	cases := []struct {
		prefix TreePath
		want   bool
	}{
		{prefix: nil, want: true},
		{prefix: TreePath{1}, want: true},
		{prefix: TreePath{1, 2}, want: true},
		{prefix: TreePath{1, 2, 3}, want: true},
		{prefix: TreePath{1, 2, 3, 4}, want: false},
		{prefix: TreePath{2}, want: false},
		{prefix: TreePath{1, 3}, want: false},
	}
	for _, tc := range cases {
		if got := p.HasPrefix(tc.prefix); got != tc.want {
			t.Errorf("HasPrefix(%v, %v) = %v, want %v", p, tc.prefix, got, tc.want)
		}
	}
}

func TestPathContains(t *testing.T) {
	p := TreePath{1, 3, 7}
	for _, id := range []int64{1, 3, 7} {
		if !p.Contains(id) {
			t.Errorf("Contains(%d) = false, want true", id)
		}
	}
	if p.Contains(2) {
		t.Error("Contains(2) = true, want false")
	}
}

func TestPathJSON(t *testing.T) {
	p := TreePath{1, 2, 3}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"1.2.3."` {
		t.Fatalf("marshal = %s, want \"1.2.3.\"", data)
	}
	var decoded TreePath
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !decoded.Equal(p) {
		t.Fatalf("unmarshal = %v, want %v", decoded, p)
	}
	if err := json.Unmarshal([]byte(`"1.2"`), &decoded); err == nil {
		t.Fatal("unmarshal of malformed path succeeded, want error")
	}
}
