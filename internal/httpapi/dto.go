package httpapi

import (
	"time"

	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
)

// CreateTreeRequest names the root node of a new tree.
type CreateTreeRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// CreateNodeRequest attaches a new node under an existing parent.
type CreateNodeRequest struct {
	ParentID int64  `json:"parentId" binding:"required,gt=0"`
	Name     string `json:"name" binding:"required,max=255"`
}

// RenameNodeRequest carries the replacement name.
type RenameNodeRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// NodeResponse is the wire shape of a single node. Level is derived from the
// path at projection time.
type NodeResponse struct {
	ID        int64     `json:"id"`
	TreeID    int64     `json:"treeId"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parentId,omitempty"`
	Path      string    `json:"path"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

func newNodeResponse(n domain.Node) NodeResponse {
	return NodeResponse{
		ID:        n.ID,
		TreeID:    n.TreeID,
		Name:      n.Name,
		ParentID:  n.ParentID,
		Path:      n.Path.String(),
		Level:     n.Level(),
		CreatedAt: n.CreatedAt,
	}
}

func newNodeResponses(nodes []domain.Node) []NodeResponse {
	out := make([]NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, newNodeResponse(n))
	}
	return out
}

// TreeNodeResponse is the nested projection of a tree or subtree.
type TreeNodeResponse struct {
	NodeResponse
	Children []TreeNodeResponse `json:"children"`
}

func newTreeNodeResponse(tn domain.TreeNode) TreeNodeResponse {
	children := make([]TreeNodeResponse, 0, len(tn.Children))
	for _, c := range tn.Children {
		children = append(children, newTreeNodeResponse(c))
	}
	return TreeNodeResponse{NodeResponse: newNodeResponse(tn.Node), Children: children}
}

func newTreeNodeResponses(forest []domain.TreeNode) []TreeNodeResponse {
	out := make([]TreeNodeResponse, 0, len(forest))
	for _, tn := range forest {
		out = append(out, newTreeNodeResponse(tn))
	}
	return out
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
