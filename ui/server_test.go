package ui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomark/adapters/predictor/random"
	"biomark/adapters/rng"
	"biomark/app"
	"biomark/domain/subtype"
	"biomark/internal"
	"biomark/internal/session"
	"biomark/ui/middleware"
)

type testClient struct {
	t        *testing.T
	server   *Server
	handler  http.Handler
	analysis *app.AnalysisService
	cookies  []*http.Cookie
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	logger := internal.NewLoggerTo(io.Discard, internal.LogLevelError)
	source := rng.NewSource(11)
	analysis := app.NewAnalysisService(random.New(source), source, logger, app.DefaultAnalysisOptions())
	srv, err := NewServer(Options{
		Title:          "Biomarker Analysis Platform",
		Icon:           "🔬",
		GinMode:        "test",
		MaxUploadBytes: 1 << 20,
		Session:        middleware.SessionOptions{CookieName: "biomark_session", TTL: time.Hour},
	}, analysis, session.NewMemoryStore(0), logger)
	require.NoError(t, err)
	return &testClient{t: t, server: srv, handler: srv.Handler(), analysis: analysis}
}

func (tc *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range tc.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	tc.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			tc.cookies = nil
			continue
		}
		tc.cookies = []*http.Cookie{ck}
	}
	return rec
}

func (tc *testClient) get(path string) *httptest.ResponseRecorder {
	return tc.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (tc *testClient) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	require.NoError(tc.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

func (tc *testClient) upload(filename string, data []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	require.NoError(tc.t, err)
	_, err = fw.Write(data)
	require.NoError(tc.t, err)
	require.NoError(tc.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func slidePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 5), B: uint8(y * 7), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var ki67Request = map[string]interface{}{
	"biomarkers": []map[string]interface{}{
		{"marker": "Ki-67", "intensity": "Strong (3+)", "percentage": 80},
	},
}

func TestIndexIssuesSessionCookie(t *testing.T) {
	tc := newTestClient(t)
	rec := tc.get("/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Biomarker Analysis Platform")
	require.Len(t, tc.cookies, 1)
	assert.Equal(t, "biomark_session", tc.cookies[0].Name)
	assert.True(t, tc.cookies[0].HttpOnly)

	first := tc.cookies[0].Value
	tc.get("/")
	assert.Equal(t, first, tc.cookies[0].Value, "the session is reused")
}

func TestAboutRendersMarkdown(t *testing.T) {
	tc := newTestClient(t)
	rec := tc.get("/about")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<h1 id="how-the-model-works">`)
	assert.Contains(t, rec.Body.String(), "<table>")
}

func TestPredictWithoutImage(t *testing.T) {
	tc := newTestClient(t)
	rec := tc.postJSON("/api/predict", ki67Request)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NO_IMAGE", decode(t, rec)["code"])

	history := decode(t, tc.get("/api/history"))
	assert.Equal(t, float64(0), history["count"])

	charts := decode(t, tc.get("/api/charts"))
	assert.NotContains(t, charts, "probabilities")
}

func TestUploadPredictAndExport(t *testing.T) {
	tc := newTestClient(t)

	rec := tc.upload("slide.png", slidePNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = tc.postJSON("/api/predict", ki67Request)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode(t, rec)
	event := result["event"].(map[string]interface{})

	label, err := subtype.ParseLabel(event["predicted_label"].(string))
	require.NoError(t, err)
	probs := event["probabilities"].(map[string]interface{})
	assert.Len(t, probs, len(subtype.Labels))
	sum := 0.0
	for _, v := range probs {
		sum += v.(float64)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	biomarkers := event["biomarkers"].(map[string]interface{})
	ki67 := biomarkers["Ki-67"].(map[string]interface{})
	assert.Equal(t, "Strong (3+)", ki67["intensity"])
	assert.Equal(t, float64(80), ki67["percentage"])

	history := decode(t, tc.get("/api/history"))
	assert.Equal(t, float64(1), history["count"])

	last := decode(t, tc.get("/api/prediction"))
	assert.Equal(t, string(label), last["predicted_label"])

	rec = tc.get("/api/heatmap.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = tc.get("/api/export/history.csv")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "history.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], string(label))

	rec = tc.get("/api/export/report.pdf")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.Equal(t, "0", rec.Header().Get("X-Report-Omitted-Fields"))

	rec = tc.get("/api/export/history.xlsx")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = tc.get("/api/export/bundle.zip")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	report := decode(t, tc.get("/api/report"))
	assert.Equal(t, string(label), report["top_prediction"])

	profile := decode(t, tc.get("/api/profile"))
	confidence := profile["confidence"].(map[string]interface{})
	assert.Equal(t, float64(1), confidence["count"])
	assert.Contains(t, profile["by_label"], string(label))
}

func TestFormPredict(t *testing.T) {
	tc := newTestClient(t)
	require.Equal(t, http.StatusOK, tc.upload("slide.png", slidePNG(t)).Code)

	form := "biomarker=HER2&biomarker=ER&intensity=Weak+(1%2B)&staining_pattern=Membranous&percentage=35&age=61&grade=2&nodal_status=N1"
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := tc.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	event := decode(t, rec)["event"].(map[string]interface{})
	assert.Len(t, event["biomarkers"], 2)
	patient := event["patient"].(map[string]interface{})
	assert.Equal(t, float64(61), patient["age"])
}

func TestPredictValidation(t *testing.T) {
	tc := newTestClient(t)
	require.Equal(t, http.StatusOK, tc.upload("slide.png", slidePNG(t)).Code)

	rec := tc.postJSON("/api/predict", map[string]interface{}{
		"biomarkers": []map[string]interface{}{{"marker": "Ki-67", "intensity": "Strong (3+)", "percentage": 140}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = tc.postJSON("/api/predict", map[string]interface{}{
		"biomarkers": []map[string]interface{}{{"marker": "CD44", "intensity": "Weak"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec)["code"])

	history := decode(t, tc.get("/api/history"))
	assert.Equal(t, float64(0), history["count"])
}

func TestUploadRejectsUnsupportedContent(t *testing.T) {
	tc := newTestClient(t)
	rec := tc.upload("notes.png", []byte("definitely not an image"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA", decode(t, rec)["code"])
}

func TestReportAndExportsRequirePrediction(t *testing.T) {
	tc := newTestClient(t)
	for _, path := range []string{"/api/report", "/api/prediction", "/api/heatmap.png", "/api/export/report.pdf", "/api/export/bundle.zip"} {
		rec := tc.get(path)
		assert.Equal(t, http.StatusConflict, rec.Code, path)
		assert.Equal(t, "NO_PREDICTION", decode(t, rec)["code"], path)
	}
}

func TestHistoryWindowValidation(t *testing.T) {
	tc := newTestClient(t)
	rec := tc.get("/api/history?window=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, rec)["code"])
}

func TestEndSessionDiscardsState(t *testing.T) {
	tc := newTestClient(t)
	require.Equal(t, http.StatusOK, tc.upload("slide.png", slidePNG(t)).Code)
	require.Equal(t, http.StatusOK, tc.postJSON("/api/predict", ki67Request).Code)

	ended := decode(t, tc.postJSON("/api/session/end", nil))
	assert.NotEmpty(t, ended["ended"])

	status := decode(t, tc.get("/api/session"))
	assert.NotEqual(t, ended["ended"], status["id"])
	assert.Equal(t, float64(0), status["history_count"])
	assert.Equal(t, false, status["has_image"])
}

func TestModelMetrics(t *testing.T) {
	tc := newTestClient(t)
	body := decode(t, tc.get("/api/metrics/model"))
	metrics := body["metrics"].(map[string]interface{})
	assert.Len(t, metrics["classes"], len(subtype.Labels))
	assert.Contains(t, body, "chart")
}

func TestEventStreamDeliversPredictions(t *testing.T) {
	tc := newTestClient(t)
	srv := httptest.NewServer(tc.handler)
	defer srv.Close()

	require.Equal(t, http.StatusOK, tc.upload("slide.png", slidePNG(t)).Code)
	sessionID := decode(t, tc.get("/api/session"))["id"].(string)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	for _, ck := range tc.cookies {
		req.AddCookie(ck)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	require.Eventually(t, func() bool {
		return tc.analysis.Events().ClientCount(sessionID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, tc.postJSON("/api/predict", ki67Request).Code)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before the prediction arrived")
			if strings.HasPrefix(line, "event:") && strings.TrimSpace(strings.TrimPrefix(line, "event:")) == "prediction" {
				return
			}
		case <-deadline:
			t.Fatal("no prediction event received")
		}
	}
}

func TestServeShutsDownWithOpenEventStream(t *testing.T) {
	tc := newTestClient(t)
	require.Equal(t, http.StatusOK, tc.get("/api/session").Code)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tc.server.Serve(ctx, ln) }()

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/api/events", nil)
	require.NoError(t, err)
	for _, ck := range tc.cookies {
		req.AddCookie(ck)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event:ready\n", line)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down with an event stream open")
	}
}
