package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/climet-eu/corsbridge/internal/infrastructure/config"
	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestRunFetchesDirectOrigin(t *testing.T) {
	t.Setenv("CORS_WARNINGS", "false")
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gincors.New(gincors.Config{
		AllowOrigins: []string{"https://lab.test"},
		AllowMethods: []string{http.MethodGet, http.MethodHead},
	}))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "hello") }
	r.GET("/a", ok)
	r.HEAD("/a", ok)
	srv := httptest.NewServer(r)
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-origin", "https://lab.test", "-metrics", srv.URL + "/a"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), srv.URL+"/a\tdirect\t200\t5 bytes")
	assert.Contains(t, stdout.String(), `corsbridge_rewrites_total{decision="direct"} 1`)
}

func TestRunReportsFailures(t *testing.T) {
	t.Setenv("CORS_WARNINGS", "false")
	t.Setenv("HTTP_RETRY_COUNT", "0")
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-origin", "https://lab.test",
		"-proxy", closed.URL + "/",
		closed.URL + "/x",
	}, &stdout, &stderr)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 requests failed")
	assert.Contains(t, stdout.String(), closed.URL+"/x\terror\t")
}

func TestRunAppliesHeadersAndAuth(t *testing.T) {
	t.Setenv("CORS_WARNINGS", "false")
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gincors.New(gincors.Config{
		AllowOrigins: []string{"https://lab.test"},
		AllowMethods: []string{http.MethodGet, http.MethodHead},
	}))
	echo := func(c *gin.Context) {
		c.String(http.StatusOK, c.GetHeader("X-Lab")+"|"+c.GetHeader("Authorization"))
	}
	r.GET("/echo", echo)
	r.HEAD("/echo", echo)
	srv := httptest.NewServer(r)
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-origin", "https://lab.test",
		"-H", "X-Lab: 42",
		"-bearer", "tok",
		"-timeout", "5s",
		srv.URL + "/echo",
	}, &stdout, &stderr)
	require.NoError(t, err)

	// body is "42|Bearer tok"
	assert.Contains(t, stdout.String(), srv.URL+"/echo\tdirect\t200\t13 bytes")
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), nil, &stdout, &stderr)
	assert.EqualError(t, err, "missing URL")
	assert.Contains(t, stderr.String(), "usage: corsfetch [flags] URL...")

	err = run(context.Background(), []string{"-bogus"}, &stdout, &stderr)
	assert.Error(t, err)

	err = run(context.Background(), []string{"-H", "no-colon", "https://a.test/"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "no-colon")
}

func TestNewLoggerFallsBackOnBadLevel(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "loud"}, false)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	dev := newLogger(config.LogConfig{Level: "info"}, true)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}
