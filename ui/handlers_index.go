package ui

import (
	"html/template"
	"net/http"
	"strings"

	"biomark/app"
	"biomark/internal/charts"
	"biomark/internal/imaging"
	"biomark/ui/middleware"

	"github.com/gin-gonic/gin"
)

// pageData is shared by every HTML page
type pageData struct {
	Title      string
	Icon       string
	View       app.DashboardView
	Metrics    charts.ModelMetrics
	Accept     string
	About      template.HTML
	ActivePage string
}

func (s *Server) page(active string) pageData {
	return pageData{
		Title:      s.opts.Title,
		Icon:       s.opts.Icon,
		Metrics:    charts.Metrics(),
		Accept:     strings.Join(imaging.SupportedExtensions(), ","),
		ActivePage: active,
	}
}

// handleIndex serves the dashboard
func (s *Server) handleIndex(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	window, err := windowParam(c)
	if err != nil {
		window = 0
	}

	data := s.page("dashboard")
	data.View = s.analysis.Dashboard(sess, window)
	if err := s.renderTemplate(c, http.StatusOK, "index.html", data); err != nil {
		s.logger.Error("[Index] template error: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

// handleAbout serves the model information page
func (s *Server) handleAbout(c *gin.Context) {
	data := s.page("about")
	data.About = s.about
	if err := s.renderTemplate(c, http.StatusOK, "about.html", data); err != nil {
		s.logger.Error("[About] template error: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}
