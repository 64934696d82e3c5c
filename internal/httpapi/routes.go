package httpapi

import (
	"net/http"

	"github.com/AndreyMensh/TreeManagementApi/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the gin engine with all routes and middleware attached.
func NewRouter(svc *core.Service) *gin.Engine {
	h := NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/trees", h.HandleCreateTree)
		v1.GET("/trees", h.HandleListTrees)
		v1.GET("/trees/:treeID", h.HandleGetTree)

		v1.POST("/trees/:treeID/nodes", h.HandleCreateNode)
		v1.GET("/trees/:treeID/nodes/:nodeID", h.HandleGetNode)
		v1.PATCH("/trees/:treeID/nodes/:nodeID", h.HandleRenameNode)
		v1.DELETE("/trees/:treeID/nodes/:nodeID", h.HandleDeleteNode)
		v1.GET("/trees/:treeID/nodes/:nodeID/children", h.HandleGetChildren)
		v1.GET("/trees/:treeID/nodes/:nodeID/subtree", h.HandleGetSubtree)
	}

	return router
}
