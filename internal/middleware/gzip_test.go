package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoEvent(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if len(body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestGzipMiddleware(t *testing.T) {
	event := `{"order_id":"0b7e6c1a-3f0e-4a59-9a55-2f1b7b8f3c11","total_cents":10000}`

	tests := []struct {
		name           string
		body           []byte
		contentEnc     string
		acceptEnc      string
		wantStatus     int
		wantEncoding   string
		wantBodySubstr string
	}{
		{
			name:           "compressed response",
			body:           []byte(event),
			acceptEnc:      "gzip, deflate",
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
			wantBodySubstr: `"total_cents":10000`,
		},
		{
			name:           "plain response",
			body:           []byte(event),
			wantStatus:     http.StatusOK,
			wantBodySubstr: `"echo":{"order_id"`,
		},
		{
			name:           "compressed request body",
			body:           gzipBytes(t, event),
			contentEnc:     "gzip",
			acceptEnc:      "gzip",
			wantStatus:     http.StatusOK,
			wantEncoding:   "gzip",
			wantBodySubstr: `"total_cents":10000`,
		},
		{
			name:       "no content is never compressed",
			acceptEnc:  "gzip",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "broken gzip body",
			body:       []byte("not gzip"),
			contentEnc: "gzip",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/events/order-captured", bytes.NewReader(tt.body))
			if tt.contentEnc != "" {
				req.Header.Set("Content-Encoding", tt.contentEnc)
			}
			if tt.acceptEnc != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEnc)
			}
			rec := httptest.NewRecorder()

			GzipMiddleware(http.HandlerFunc(echoEvent)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			require.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))
			if tt.wantBodySubstr == "" {
				return
			}

			var body io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer zr.Close()
				body = zr
			}
			got, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(got), tt.wantBodySubstr), "body %q", got)
		})
	}
}
