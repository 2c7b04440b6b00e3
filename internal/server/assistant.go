package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/iaaps/internal/assistant"
)

type assistantQueryRequest struct {
	Text string `json:"text"`
}

func (s *Server) AssistantQuery(c *gin.Context) {
	var req assistantQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.assistantSvc.Ask(c.Request.Context(), assistant.Query{Text: req.Text})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
