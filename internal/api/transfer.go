package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tasktrack/pkg/transfer"
)

func (s *Server) handleExport(c *gin.Context) {
	data, err := transfer.Export(c.Request.Context(), s.repo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="tasks.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) handleImport(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := transfer.Import(c.Request.Context(), s.repo, body)
	if err != nil {
		if res.Added > 0 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "added": res.Added, "skipped": res.Skipped})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
