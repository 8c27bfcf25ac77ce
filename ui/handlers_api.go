package ui

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"biomark/internal/charts"
	"biomark/internal/errors"
	"biomark/ui/middleware"

	"github.com/gin-gonic/gin"
)

// eventsPingInterval keeps idle event streams alive through proxies
var eventsPingInterval = 30 * time.Second

// respondError writes the JSON error envelope with the status for err's code
func (s *Server) respondError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("[API] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	message := err.Error()
	if status >= http.StatusInternalServerError && errors.GetCode(err) != errors.CodeExternalService {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": errors.GetCode(err)})
}

func (s *Server) handleSessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.CurrentSession(c).GetStatus())
}

func (s *Server) handleEndSession(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if err := s.sessions.EndSession(c.Request.Context(), sess.ID); err != nil {
		s.respondError(c, errors.Wrap(err, "end session"))
		return
	}
	s.analysis.Events().CloseSession(sess.ID.String())
	middleware.ForgetSession(c, s.opts.Session)
	s.logger.Info("[Session] ended session %s", sess.ID)
	c.JSON(http.StatusOK, gin.H{"ended": sess.ID.String()})
}

func (s *Server) handleUploadImage(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	fh, err := c.FormFile("image")
	if err != nil {
		s.respondError(c, errors.InvalidInput("multipart field \"image\" is required"))
		return
	}
	if s.opts.MaxUploadBytes > 0 && fh.Size > s.opts.MaxUploadBytes {
		s.respondError(c, errors.New(errors.CodeUnsupportedMedia, fmt.Sprintf("image exceeds %d bytes", s.opts.MaxUploadBytes)))
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.respondError(c, errors.Wrap(err, "open upload"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.respondError(c, errors.Wrap(err, "read upload"))
		return
	}

	upload, err := s.analysis.Upload(c.Request.Context(), sess, fh.Filename, data)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": upload.Meta(), "session": sess.GetStatus()})
}

func (s *Server) handleClearImage(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	s.analysis.ClearImage(sess)
	c.JSON(http.StatusOK, gin.H{"session": sess.GetStatus()})
}

func (s *Server) handlePredict(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	form, err := bindPredictRequest(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	result, err := s.analysis.Predict(c.Request.Context(), sess, form)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLastPrediction(c *gin.Context) {
	e, err := s.analysis.LastPrediction(middleware.CurrentSession(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleHistory(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	events := s.analysis.History(middleware.CurrentSession(c), window)
	c.JSON(http.StatusOK, gin.H{"window": window, "count": len(events), "events": events})
}

func (s *Server) handleSummary(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.analysis.Summary(middleware.CurrentSession(c), window))
}

func (s *Server) handleProfile(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	profile, err := s.analysis.Profile(middleware.CurrentSession(c), window)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// handleEvents streams the session's new predictions as Server-Sent Events
func (s *Server) handleEvents(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	stream, unsubscribe := s.analysis.Events().Subscribe(sess.ID.String())
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"session_id": sess.ID.String()})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(msg.Type, msg)
			return true
		case now := <-ping.C:
			c.SSEvent("ping", gin.H{"status": "alive", "timestamp": now.UTC().Format(time.RFC3339)})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Server) handleCharts(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.analysis.Charts(middleware.CurrentSession(c), window))
}

func (s *Server) handleModelMetrics(c *gin.Context) {
	m := charts.Metrics()
	c.JSON(http.StatusOK, gin.H{"metrics": m, "chart": charts.MetricsChart(m)})
}

func (s *Server) handleReport(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	doc, err := s.analysis.Report(sess, sess.LastForm())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleHeatmap(c *gin.Context) {
	png, err := s.analysis.Heatmap(middleware.CurrentSession(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
