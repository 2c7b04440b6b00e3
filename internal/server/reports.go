package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/iaaps/internal/report"
	"go.uber.org/zap"
)

func (s *Server) DownloadPDFReport(c *gin.Context) {
	s.downloadReport(c, report.FormatPDF)
}

func (s *Server) DownloadXLSXReport(c *gin.Context) {
	s.downloadReport(c, report.FormatXLSX)
}

func (s *Server) downloadReport(c *gin.Context, format string) {
	var req report.Request
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	doc, err := s.reportSvc.Generate(c.Request.Context(), format, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := io.ReadAll(doc.Body)
	if err != nil {
		s.log.Error("failed to read report body", zap.String("document_id", doc.ID), zap.Error(err))
		AbortWithError(c, ErrInternal)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.FileName))
	c.Header("X-Document-Id", doc.ID)
	c.Data(http.StatusOK, doc.ContentType, body)
}
