// Package httpapi maps the tree service operations onto an HTTP surface. It
// owns request decoding and validation, domain-error-to-status translation,
// and nothing else; all semantics live in the core service.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AndreyMensh/TreeManagementApi/internal/core"
	"github.com/AndreyMensh/TreeManagementApi/pkg/domain"
	"github.com/gin-gonic/gin"
)

// Handlers contains the HTTP handlers for the tree service.
type Handlers struct {
	svc *core.Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *core.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleCreateTree handles POST /v1/trees.
func (h *Handlers) HandleCreateTree(c *gin.Context) {
	logger := requestLogger(c, "HandleCreateTree")

	var req CreateTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	root, _, err := h.svc.CreateTree(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, newNodeResponse(root))
}

// HandleListTrees handles GET /v1/trees.
func (h *Handlers) HandleListTrees(c *gin.Context) {
	logger := requestLogger(c, "HandleListTrees")

	summaries, err := h.svc.ListTrees(c.Request.Context())
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// HandleGetTree handles GET /v1/trees/:treeID.
func (h *Handlers) HandleGetTree(c *gin.Context) {
	logger := requestLogger(c, "HandleGetTree")

	treeID, ok := pathID(c, "treeID")
	if !ok {
		return
	}
	forest, err := h.svc.GetTree(c.Request.Context(), treeID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, newTreeNodeResponses(forest))
}

// HandleCreateNode handles POST /v1/trees/:treeID/nodes.
func (h *Handlers) HandleCreateNode(c *gin.Context) {
	logger := requestLogger(c, "HandleCreateNode")

	treeID, ok := pathID(c, "treeID")
	if !ok {
		return
	}
	var req CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	node, _, err := h.svc.CreateNode(c.Request.Context(), treeID, req.ParentID, req.Name)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, newNodeResponse(node))
}

// HandleGetNode handles GET /v1/trees/:treeID/nodes/:nodeID.
func (h *Handlers) HandleGetNode(c *gin.Context) {
	logger := requestLogger(c, "HandleGetNode")

	treeID, nodeID, ok := pathIDs(c)
	if !ok {
		return
	}
	node, err := h.svc.GetNode(c.Request.Context(), treeID, nodeID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, newNodeResponse(node))
}

// HandleRenameNode handles PATCH /v1/trees/:treeID/nodes/:nodeID.
func (h *Handlers) HandleRenameNode(c *gin.Context) {
	logger := requestLogger(c, "HandleRenameNode")

	treeID, nodeID, ok := pathIDs(c)
	if !ok {
		return
	}
	var req RenameNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	node, _, err := h.svc.RenameNode(c.Request.Context(), treeID, nodeID, req.Name)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, newNodeResponse(node))
}

// HandleDeleteNode handles DELETE /v1/trees/:treeID/nodes/:nodeID.
func (h *Handlers) HandleDeleteNode(c *gin.Context) {
	logger := requestLogger(c, "HandleDeleteNode")

	treeID, nodeID, ok := pathIDs(c)
	if !ok {
		return
	}
	if _, err := h.svc.DeleteNode(c.Request.Context(), treeID, nodeID); err != nil {
		respondError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGetChildren handles GET /v1/trees/:treeID/nodes/:nodeID/children.
func (h *Handlers) HandleGetChildren(c *gin.Context) {
	logger := requestLogger(c, "HandleGetChildren")

	treeID, nodeID, ok := pathIDs(c)
	if !ok {
		return
	}
	children, err := h.svc.GetChildren(c.Request.Context(), treeID, nodeID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, newNodeResponses(children))
}

// HandleGetSubtree handles GET /v1/trees/:treeID/nodes/:nodeID/subtree.
func (h *Handlers) HandleGetSubtree(c *gin.Context) {
	logger := requestLogger(c, "HandleGetSubtree")

	treeID, nodeID, ok := pathIDs(c)
	if !ok {
		return
	}
	subtree, err := h.svc.GetSubtree(c.Request.Context(), treeID, nodeID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, newTreeNodeResponse(subtree))
}

func requestLogger(c *gin.Context, handler string) *slog.Logger {
	return slog.With("request_id", requestID(c), "handler", handler)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path parameter " + name + " must be a positive integer",
			Code:  "INVALID_PARAMETER",
		})
		return 0, false
	}
	return id, true
}

func pathIDs(c *gin.Context) (treeID, nodeID int64, ok bool) {
	treeID, ok = pathID(c, "treeID")
	if !ok {
		return 0, 0, false
	}
	nodeID, ok = pathID(c, "nodeID")
	if !ok {
		return 0, 0, false
	}
	return treeID, nodeID, true
}

// respondError translates domain errors into status codes; anything
// unrecognised is an opaque 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	var treeNotFound domain.ErrTreeNotFound
	var nodeNotFound domain.ErrNodeNotFound
	var hasChildren domain.ErrHasChildren
	var invalidParentTree domain.ErrInvalidParentTree
	var circular domain.ErrCircularReference
	var invalidName domain.ErrInvalidName
	var ruleViolation domain.RuleViolationError

	switch {
	case errors.As(err, &treeNotFound):
		status, code = http.StatusNotFound, "TREE_NOT_FOUND"
	case errors.As(err, &nodeNotFound):
		status, code = http.StatusNotFound, "NODE_NOT_FOUND"
	case errors.As(err, &hasChildren):
		status, code = http.StatusConflict, "HAS_CHILDREN"
	case errors.As(err, &invalidParentTree):
		status, code = http.StatusUnprocessableEntity, "INVALID_PARENT_TREE"
	case errors.As(err, &circular):
		status, code = http.StatusUnprocessableEntity, "CIRCULAR_REFERENCE"
	case errors.As(err, &invalidName):
		status, code = http.StatusBadRequest, "INVALID_NAME"
	case errors.As(err, &ruleViolation):
		status, code = http.StatusConflict, "RULE_VIOLATION"
	}

	if status == http.StatusInternalServerError {
		logger.Error("operation failed", "error", err)
		c.JSON(status, ErrorResponse{Error: "internal error", Code: code})
		return
	}
	logger.Warn("request rejected", "error", err, "code", code)
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
