package cmd

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/eske/multivec-go/multivec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, models map[string]*multivec.Model) (string, *App) {
	t.Helper()
	catalog := multivec.NewModelCatalog()
	for id, m := range models {
		catalog.Add(id, m)
	}
	app := NewApp(catalog, AppConfig{Address: "127.0.0.1:0"})
	require.NoError(t, app.Start())
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
		_ = app.Wait()
	})
	require.NotEmpty(t, app.Address())
	return "http://" + app.Address(), app
}

func trainTestModel(t *testing.T, edit func(*multivec.TrainingConfig)) *multivec.Model {
	t.Helper()
	h := multivec.NewTrainHarness(t).
		WithRepeatedLines(20,
			"the quick brown fox jumps over the lazy dog",
			"the lazy dog sleeps under the brown tree",
			"a quick fox runs past the sleeping dog",
		)
	if edit != nil {
		h = h.WithConfigEdit(edit)
	}
	h.Setup().Train(context.Background())
	t.Cleanup(h.Cleanup)
	return h.Model()
}

func TestAppHTTP(t *testing.T) {
	t.Run("endpoints", testAppEndpoints)
	t.Run("ui_content_type", testAppUIContentType)
	t.Run("model_id_middleware", testAppModelIDMiddleware)
}

func testAppEndpoints(t *testing.T) {
	base, _ := newTestApp(t, map[string]*multivec.Model{
		"en-news": trainTestModel(t, nil),
	})

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "healthz", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "ui_index", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "metrics_app", method: http.MethodGet, path: "/metrics/app", status: http.StatusOK},
		{name: "models_list", method: http.MethodGet, path: "/models", status: http.StatusOK},
		{name: "model_detail", method: http.MethodGet, path: "/models/en-news", status: http.StatusOK},
		{name: "model_detail_unknown", method: http.MethodGet, path: "/models/no-such-model", status: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, base+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func testAppUIContentType(t *testing.T) {
	base, _ := newTestApp(t, nil)

	req, err := http.NewRequest(http.MethodGet, base+"/", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Multivec")
}

func testAppModelIDMiddleware(t *testing.T) {
	base, _ := newTestApp(t, nil)

	tests := []struct {
		name            string
		sendHeader      string
		expectHeader    string
		expectHeaderSet bool
	}{
		{
			name:            "echoes_header_back",
			sendHeader:      "my-test-model",
			expectHeader:    "my-test-model",
			expectHeaderSet: true,
		},
		{
			name:            "no_header_no_response_header",
			sendHeader:      "",
			expectHeader:    "",
			expectHeaderSet: false,
		},
		{
			name:            "whitespace_only_treated_as_absent",
			sendHeader:      "   ",
			expectHeader:    "",
			expectHeaderSet: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, base+"/healthz", nil)
			require.NoError(t, err)

			if tc.sendHeader != "" {
				req.Header.Set("X-Model-ID", tc.sendHeader)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)

			got := resp.Header.Get("X-Model-ID")
			if tc.expectHeaderSet {
				assert.Equal(t, tc.expectHeader, got)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}
