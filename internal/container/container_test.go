package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biomark/adapters/rng"
	"biomark/internal"
	"biomark/internal/config"
	"biomark/internal/errors"
)

func TestNewWiresDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	t.Setenv("RANDOM_SEED", "5")
	cfg, err := config.Load()
	require.NoError(t, err)

	c, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, "random", c.Predictor.Name())
	assert.Equal(t, int64(5), c.RNG.Seed())

	rec := httptest.NewRecorder()
	c.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.Ops.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewPredictor(t *testing.T) {
	source := rng.NewSource(1)
	logger := internal.NewLogger(internal.LogLevelError)

	p, err := NewPredictor(config.ModelConfig{Predictor: config.PredictorDualBranch, WeightsPath: filepath.Join(t.TempDir(), "missing.json")}, source, logger)
	require.NoError(t, err, "missing weights fall back to random initialization")
	assert.Equal(t, "dualbranch", p.Name())

	_, err = NewPredictor(config.ModelConfig{Predictor: config.PredictorRemote}, source, logger)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	p, err = NewPredictor(config.ModelConfig{Predictor: config.PredictorRemote, RemoteURL: "http://localhost:9/predict"}, source, logger)
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Name())

	_, err = NewPredictor(config.ModelConfig{Predictor: "oracle"}, source, logger)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestSessionExpiryClosesEventStreams(t *testing.T) {
	t.Setenv("GIN_MODE", "test")
	cfg, err := config.Load()
	require.NoError(t, err)
	c, err := New(cfg)
	require.NoError(t, err)

	sess, err := c.Sessions.CreateSession(context.Background())
	require.NoError(t, err)
	stream, unsubscribe := c.Analysis.Events().Subscribe(sess.ID.String())
	defer unsubscribe()

	c.sessionExpired(sess.ID)

	_, open := <-stream
	assert.False(t, open)
	assert.Equal(t, 0, c.Analysis.Events().ClientCount(sess.ID.String()))
}
