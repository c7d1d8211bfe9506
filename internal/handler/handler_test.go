package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var r ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	return r
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"not found", usecase.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
		{"wrapped stock", fmt.Errorf("line 2: %w", usecase.ErrInsufficientStock), http.StatusBadRequest, "INSUFFICIENT_STOCK", "insufficient stock"},
		{"plain error is hidden", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL", "internal server error"},
		{"internal is hidden", fmt.Errorf("%w: disk full", usecase.ErrInternal), http.StatusInternalServerError, "INTERNAL", "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, writeError(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Code)
			assert.Equal(t, tc.msg, body.Error)
		})
	}
}

func TestPageParams(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?page=2&limit=5", nil), httptest.NewRecorder())
	page, limit, ok := pageParams(c)
	assert.True(t, ok)
	assert.Equal(t, 2, page)
	assert.Equal(t, 5, limit)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?page=abc", nil), httptest.NewRecorder())
	_, _, ok = pageParams(c)
	assert.False(t, ok)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	page, limit, ok = pageParams(c)
	assert.True(t, ok)
	assert.Zero(t, page)
	assert.Zero(t, limit)
}

// =====================
// contact
// =====================

type recordingMailer struct {
	sent []usecase.Mail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, mail usecase.Mail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestContactHandler_Send(t *testing.T) {
	mailer := &recordingMailer{}
	e := echo.New()
	NewContactHandler(usecase.NewContactUsecase(mailer, "loja@example.com")).RegisterRoutes(e)

	rec := postJSON(e, "/contact/send", `{"name":"Ana","email":"ana@example.com","message":"Oi"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, mailer.sent, 2)

	rec = postJSON(e, "/contact/send", `{"name":"Ana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, rec).Code)

	rec = postJSON(e, "/contact/send", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid body", decodeError(t, rec).Error)
}

func TestContactHandler_MailerDown(t *testing.T) {
	e := echo.New()
	NewContactHandler(usecase.NewContactUsecase(&recordingMailer{err: errors.New("smtp: 421")}, "loja@example.com")).RegisterRoutes(e)

	rec := postJSON(e, "/contact/send", `{"name":"Ana","email":"ana@example.com","message":"Oi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "smtp")
}

// =====================
// upload
// =====================

type memStorage struct{ files map[string][]byte }

func (s *memStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.files[name] = b
	return name, nil
}

func (s *memStorage) Delete(_ context.Context, name string) error {
	delete(s.files, name)
	return nil
}

type staticID struct{}

func (staticID) NewID() string { return "fixed" }

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUploadHandler(t *testing.T) {
	st := &memStorage{files: map[string][]byte{}}
	e := echo.New()
	NewUploadHandler(usecase.NewUploadUsecase(st, 1024, staticID{})).RegisterRoutes(e.Group("/upload"))

	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
	body, ctype := multipartBody(t, "image", "pixel.gif", gif)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var out usecase.UploadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "/uploads/product-fixed.gif", out.ImageURL)
	assert.Equal(t, gif, st.files["product-fixed.gif"])

	// フィールド名違い
	body, ctype = multipartBody(t, "file", "pixel.gif", gif)
	req = httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "image file is required", decodeError(t, rec).Error)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "6144K", formatBytes(6<<20))
}
