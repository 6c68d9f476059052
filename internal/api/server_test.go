package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"shopbot/internal/api/health"
	"shopbot/internal/metrics"
	"shopbot/pkg/logger"
)

func TestServerRoutes(t *testing.T) {
	metrics.Init()

	var webhookHits int
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookHits++
		w.WriteHeader(http.StatusOK)
	})

	srv := NewServer(ServerConfig{ServiceName: "shopbot", Version: "test", TelegramWebhook: webhook},
		health.New(logger.Nop(), "shopbot", "test"), logger.Nop())

	tests := []struct {
		path string
		code int
	}{
		{"/", http.StatusOK},
		{"/live", http.StatusOK},
		{"/ready", http.StatusOK},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{WebhookPath, http.StatusOK},
		{"/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Equal(t, 1, webhookHits)
}

func TestServer_PollingModeHasNoWebhook(t *testing.T) {
	srv := NewServer(ServerConfig{}, health.New(logger.Nop(), "shopbot", "test"), logger.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, WebhookPath, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
