package screening_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/screening"
	"github.com/JaimeStill/tayyib/internal/session"
	"github.com/JaimeStill/tayyib/pkg/routes"
)

func newServer(t *testing.T, maxUpload int64) (*http.ServeMux, *harness) {
	t.Helper()
	h := newHarness(t, pipeline.Policy{})

	cfg := &session.Config{}
	require.NoError(t, cfg.Finalize(nil))
	identity, err := session.NewIdentity(cfg, discardLogger())
	require.NoError(t, err)

	mux := http.NewServeMux()
	routes.Register(mux, screening.NewHandler(h.sys, identity, h.ledger, discardLogger(), maxUpload).Routes())
	return mux, h
}

func do(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	if req.Header.Get(session.HeaderName) == "" && len(req.Cookies()) == 0 {
		req.Header.Set(session.HeaderName, sid)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, target string, fields map[string]string, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func screenJSON(t *testing.T, mux *http.ServeMux, product string) assessment.Product {
	t.Helper()
	rec := do(mux, jsonRequest(http.MethodPost, "/screenings", map[string]string{
		"product_name":     product,
		"ingredients_text": "ingredients of " + product,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res screening.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res.Product
}

func TestHandlerScreen(t *testing.T) {
	mux, _ := newServer(t, 1<<20)

	p := screenJSON(t, mux, "biscuits")
	assert.Equal(t, assessment.StatusRequiresReview, p.OverallStatus)

	rec := do(mux, httptest.NewRequest(http.MethodGet, "/screenings/"+p.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(mux, httptest.NewRequest(http.MethodGet, "/screenings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var history session.Cache
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history.SingleProductHistory, 1)
	assert.Equal(t, p.ID, history.SingleProductHistory[0].ID)
}

func TestHandlerScreenErrors(t *testing.T) {
	mux, _ := newServer(t, 1<<20)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"product_name":`, http.StatusBadRequest},
		{"missing source", `{"product_name":"water"}`, http.StatusBadRequest},
		{"no ingredients", `{"product_name":"empty","ingredients_text":"x"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/screenings", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := do(mux, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandlerScreenMultipart(t *testing.T) {
	mux, h := newServer(t, 1<<20)

	req := multipartRequest(t, "/screenings", map[string]string{"product_name": "water"}, "label.png", "image/png", pngData)
	rec := do(mux, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), h.classifier.calls.Load())
}

func TestHandlerBatch(t *testing.T) {
	mux, _ := newServer(t, 1<<20)

	rec := do(mux, jsonRequest(http.MethodPost, "/screenings/batch", batch("water", "sausage")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res screening.BatchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, []string{"water", "sausage"}, names(res.Products))

	rec = do(mux, jsonRequest(http.MethodPost, "/screenings/batch", screening.BatchRequest{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCookieSession(t *testing.T) {
	mux, _ := newServer(t, 1<<20)

	req := jsonRequest(http.MethodPost, "/screenings", map[string]string{
		"product_name":     "water",
		"ingredients_text": "water",
	})
	first := httptest.NewRecorder()
	mux.ServeHTTP(first, req)
	require.Equal(t, http.StatusCreated, first.Code)

	cookies := first.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "tayyib_session", cookies[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/screenings", nil)
	req.AddCookie(cookies[0])
	second := httptest.NewRecorder()
	mux.ServeHTTP(second, req)
	require.Equal(t, http.StatusOK, second.Code)

	var history session.Cache
	require.NoError(t, json.NewDecoder(second.Body).Decode(&history))
	assert.Len(t, history.SingleProductHistory, 1)

	// a different client starts empty
	other := httptest.NewRecorder()
	mux.ServeHTTP(other, httptest.NewRequest(http.MethodGet, "/screenings", nil))
	require.Equal(t, http.StatusOK, other.Code)
	require.NoError(t, json.NewDecoder(other.Body).Decode(&history))
	assert.Empty(t, history.SingleProductHistory)
}

func TestHandlerInvalidSessionHeader(t *testing.T) {
	mux, _ := newServer(t, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/screenings", nil)
	req.Header.Set(session.HeaderName, "not a valid id!")
	rec := do(mux, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerEvidenceFlow(t *testing.T) {
	mux, h := newServer(t, 1<<20)
	p := screenJSON(t, mux, "biscuits")
	base := "/screenings/" + p.ID.String()

	rec := do(mux, multipartRequest(t, base+"/evidence", map[string]string{
		"ingredient":    "Gelatin",
		"declared_type": "certificate",
	}, "cert.png", "image/png", pngData))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var attached screening.EvidenceResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&attached))
	require.NotNil(t, attached.Evidence)
	assert.Equal(t, assessment.StatusApproved, attached.Product.OverallStatus)
	assert.Equal(t, assessment.DeclaredCertificate, attached.Evidence.DeclaredType)
	evidenceURL := base + "/evidence/" + attached.Evidence.ID.String()

	rec = do(mux, httptest.NewRequest(http.MethodGet, evidenceURL+"/preview", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, pngData, body)

	rec = do(mux, httptest.NewRequest(http.MethodDelete, evidenceURL+"?ingredient=gelatin", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var removed screening.EvidenceResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&removed))
	require.NotNil(t, removed.Removed)
	assert.True(t, *removed.Removed)
	assert.Equal(t, assessment.StatusRequiresReview, removed.Product.OverallStatus)
	assert.Zero(t, h.previews.Len())

	rec = do(mux, httptest.NewRequest(http.MethodGet, evidenceURL+"/preview", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerEvidenceErrors(t *testing.T) {
	mux, _ := newServer(t, 4096)
	p := screenJSON(t, mux, "biscuits")
	target := "/screenings/" + p.ID.String() + "/evidence"

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		mime     string
		data     []byte
		status   int
	}{
		{
			name:     "unsupported type",
			fields:   map[string]string{"ingredient": "Gelatin"},
			filename: "notes.txt",
			mime:     "text/plain",
			data:     []byte("hello"),
			status:   http.StatusUnsupportedMediaType,
		},
		{
			name:     "unknown declared type",
			fields:   map[string]string{"ingredient": "Gelatin", "declared_type": "receipt"},
			filename: "cert.png",
			mime:     "image/png",
			data:     pngData,
			status:   http.StatusBadRequest,
		},
		{
			name:     "missing ingredient",
			fields:   map[string]string{},
			filename: "cert.png",
			mime:     "image/png",
			data:     pngData,
			status:   http.StatusBadRequest,
		},
		{
			name:     "unknown ingredient",
			fields:   map[string]string{"ingredient": "Sugar"},
			filename: "cert.png",
			mime:     "image/png",
			data:     pngData,
			status:   http.StatusNotFound,
		},
		{
			name:   "missing file",
			fields: map[string]string{"ingredient": "Gelatin"},
			status: http.StatusBadRequest,
		},
		{
			name:     "upload too large",
			fields:   map[string]string{"ingredient": "Gelatin"},
			filename: "big.png",
			mime:     "image/png",
			data:     bytes.Repeat([]byte{1}, 8192),
			status:   http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, multipartRequest(t, target, tt.fields, tt.filename, tt.mime, tt.data))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerSubmit(t *testing.T) {
	mux, _ := newServer(t, 1<<20)
	p := screenJSON(t, mux, "sausage")
	target := "/screenings/" + p.ID.String() + "/submit"

	rec := do(mux, jsonRequest(http.MethodPost, target, map[string]string{"client_reference": "ACME-1"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry pipeline.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	assert.Equal(t, p.ID, entry.SourceAssessmentID)
	assert.Equal(t, pipeline.PriorityHigh, entry.Priority)

	rec = do(mux, httptest.NewRequest(http.MethodPost, target, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(mux, httptest.NewRequest(http.MethodPost, "/screenings/not-a-uuid/submit", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerEndSession(t *testing.T) {
	mux, _ := newServer(t, 1<<20)
	screenJSON(t, mux, "water")

	rec := do(mux, httptest.NewRequest(http.MethodDelete, "/screenings", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(mux, httptest.NewRequest(http.MethodGet, "/screenings", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var history session.Cache
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	assert.Empty(t, history.SingleProductHistory)
}
