package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_SetsCorrelationFromRequestID(t *testing.T) {
	var seen string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Correlation-Id")
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	newRouter(api).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions?user_id=u1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotEmpty(t, seen)
}

func TestRouter_KeepsCallerCorrelationID(t *testing.T) {
	var seen string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Correlation-Id")
	})

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-Correlation-Id", "corr-9")
	newRouter(api).ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "corr-9", seen)
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	api := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	newRouter(api).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
