package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gallotrack-backend/api/middleware"
	"github.com/angelmondragon/gallotrack-backend/pkg/types"
)

// newRequest builds a request for principal 7 with the given chi URL params.
func newRequest(method, target string, body io.Reader, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithPrincipal(ctx, 7, false)
	return req.WithContext(ctx)
}

func jsonRequest(method, target, body string, params map[string]string) *http.Request {
	req := newRequest(method, target, bytes.NewBufferString(body), params)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type formFile struct {
	field, name string
	payload     []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files []formFile, params map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.payload)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := newRequest(method, target, &buf, params)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env.Error
}
