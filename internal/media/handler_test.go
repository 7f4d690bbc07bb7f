package media

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/bandsite/service/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	name, contentType string
	data              []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func newAdminRouter(svc *Service) http.Handler {
	h := NewHandler(svc, zerolog.Nop())
	r := chi.NewRouter()
	r.Post("/api/v1/media", h.Upload)
	r.Get("/api/v1/media/{id}", h.Get)
	r.Delete("/api/v1/media/{id}", h.Delete)
	return r
}

func TestHandler_UploadBatch(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig)
	h := newAdminRouter(svc)
	owner := "0b7c53a8-3f3e-4a55-9c1e-6f3f1b0d2a11"

	req := multipartRequest(t, map[string]string{"acl": "public-read", "associationKind": "gig", "associationId": "42"},
		part{"cover.png", "image/png", pngBytes(t, 2048, 1024)},
		part{"notes.txt", "text/plain", []byte("soundcheck at 6")},
	)
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, owner))

	rec, env := serve(t, h, req)
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var items []ItemResult
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)

	img := items[0].Result.Record
	assert.Equal(t, "cover.webp", img.Name)
	assert.Equal(t, "image/webp", img.MimeType)
	assert.Equal(t, 1024, *img.Width)
	assert.Equal(t, ACLPublicRead, img.ACL)
	assert.Equal(t, owner, *img.OwnerID)
	assert.Equal(t, &Association{Kind: "gig", ID: "42"}, img.Association)

	txt := items[1].Result.Record
	assert.Equal(t, CategoryFile, txt.Category)
	assert.Equal(t, "text/plain", txt.MimeType)

	// uploading the same files again yields duplicates only
	rec, env = serve(t, h, multipartRequest(t, nil, part{"notes-copy.txt", "text/plain", []byte("soundcheck at 6")}))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.True(t, items[0].Result.IsDuplicate)
	assert.Contains(t, items[0].Result.Warning, "notes.txt")
}

func TestHandler_UploadSkipsTranscodeWhenDisabled(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig)
	rec, env := serve(t, newAdminRouter(svc), multipartRequest(t, map[string]string{"transcode": "false"},
		part{"raw.png", "", pngBytes(t, 2048, 1024)}))
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var items []ItemResult
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Equal(t, "image/png", items[0].Result.Record.MimeType)
	assert.Equal(t, "raw.png", items[0].Result.Record.Name)
}

func TestHandler_UploadRejections(t *testing.T) {
	cfg := testConfig
	cfg.MaxFileBytes = 64
	cfg.MaxBatchFiles = 2

	tests := []struct {
		name     string
		fields   map[string]string
		files    []part
		wantCode int
		wantKind string
	}{
		{"no files", nil, nil, http.StatusBadRequest, ""},
		{"bad acl", map[string]string{"acl": "everyone"}, []part{{"a.txt", "text/plain", []byte("a")}}, http.StatusBadRequest, ""},
		{"half an association", map[string]string{"associationKind": "gig"}, []part{{"a.txt", "text/plain", []byte("a")}}, http.StatusBadRequest, ""},
		{"too many files", nil, []part{{"a", "", []byte("a")}, {"b", "", []byte("b")}, {"c", "", []byte("c")}}, http.StatusRequestEntityTooLarge, "batch_limit"},
		{"oversize file", nil, []part{{"big.bin", "", bytes.Repeat([]byte{1}, 65)}}, http.StatusRequestEntityTooLarge, "oversize"},
		{"undecodable image", nil, []part{{"x.png", "image/png", []byte("definitely not a png")}}, http.StatusUnprocessableEntity, "transcode_failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, store := newTestService(t, cfg)
			rec, env := serve(t, newAdminRouter(svc), multipartRequest(t, tt.fields, tt.files...))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantKind, env.Kind)
			assert.Zero(t, store.puts.Load())
		})
	}
}

func TestHandler_PartialFailureStillCreated(t *testing.T) {
	cfg := testConfig
	cfg.MaxFileBytes = 64
	svc, _, _ := newTestService(t, cfg)

	rec, env := serve(t, newAdminRouter(svc), multipartRequest(t, nil,
		part{"ok.txt", "text/plain", []byte("fits")},
		part{"big.bin", "", bytes.Repeat([]byte{1}, 65)},
	))
	require.Equal(t, http.StatusCreated, rec.Code)

	var items []ItemResult
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.NotNil(t, items[0].Result)
	assert.Equal(t, KindOversize, items[1].Kind)
	assert.Nil(t, items[1].Result)
}

func TestHandler_GetAndDelete(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig)
	h := newAdminRouter(svc)
	res, err := svc.Upload(context.Background(), []byte("press kit"), "kit.txt", "text/plain", UploadOptions{})
	require.NoError(t, err)
	path := "/api/v1/media/" + res.Record.ID

	rec, env := serve(t, h, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got MediaObject
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, res.Record.ID, got.ID)

	rec, env = serve(t, h, httptest.NewRequest(http.MethodDelete, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, StatusDeleted, got.Status)

	rec, env = serve(t, h, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Kind)

	rec, _ = serve(t, h, httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
