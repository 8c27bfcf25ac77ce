package ui

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"biomark/ui/middleware"

	"github.com/gin-gonic/gin"
)

const (
	mimeCSV  = "text/csv; charset=utf-8"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePDF  = "application/pdf"
	mimeZIP  = "application/zip"
)

// attachment sends a rendered export as a download
func attachment(c *gin.Context, name, contentType string, body []byte) {
	stamp := time.Now().UTC().Format("20060102-150405")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="biomark-%s-%s"`, stamp, name))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) handleExportCSV(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := s.analysis.ExportHistoryCSV(&buf, middleware.CurrentSession(c), window); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, "history.csv", mimeCSV, buf.Bytes())
}

func (s *Server) handleExportXLSX(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := s.analysis.ExportHistoryXLSX(&buf, middleware.CurrentSession(c), window); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, "history.xlsx", mimeXLSX, buf.Bytes())
}

func (s *Server) handleExportPDF(c *gin.Context) {
	var buf bytes.Buffer
	stats, err := s.analysis.ExportReportPDF(&buf, middleware.CurrentSession(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("X-Report-Pages", strconv.Itoa(stats.Pages))
	c.Header("X-Report-Omitted-Fields", strconv.Itoa(stats.Omitted))
	attachment(c, "report.pdf", mimePDF, buf.Bytes())
}

func (s *Server) handleExportBundle(c *gin.Context) {
	var buf bytes.Buffer
	if _, err := s.analysis.ExportBundle(c.Request.Context(), &buf, middleware.CurrentSession(c)); err != nil {
		s.respondError(c, err)
		return
	}
	attachment(c, "bundle.zip", mimeZIP, buf.Bytes())
}
