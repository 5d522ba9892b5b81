package plugins_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/cadforge/internal/plugins"
)

func TestExternalAppSubstitutesParams(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	app := plugins.NewExternalApp("slicer", "Slices models", "echo", []string{"--file", "{file}", "--layers={layers}"}, 0)

	res := app.Execute(context.Background(), map[string]any{"file": "part.stl", "layers": 120})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "--file part.stl --layers=120", res.Output)
}

func TestExternalAppFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	app := plugins.NewExternalApp("broken", "", "sh", []string{"-c", "echo bad input >&2; exit 3"}, 0)

	res := app.Execute(context.Background(), nil)
	assert.False(t, res.Success)
	assert.Equal(t, "bad input", res.Error)
}

func TestExternalAppTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	app := plugins.NewExternalApp("slow", "", "sleep", []string{"5"}, 100*time.Millisecond)

	res := app.Execute(context.Background(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestWebAPIPost(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price": 12.5}`))
	}))
	defer srv.Close()

	api := plugins.NewWebAPI("quote", "Quotes parts", srv.URL, "", map[string]string{"X-Api-Key": "secret"}, time.Second)
	res := api.Execute(context.Background(), map[string]any{"material": "steel"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]any{"material": "steel"}, got)
	assert.Equal(t, 12.5, res.Data["price"])
}

func TestWebAPIGetAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "M8", r.URL.Query().Get("size"))
		http.Error(w, "no stock", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	api := plugins.NewWebAPI("stock", "", srv.URL, "get", nil, time.Second)
	res := api.Execute(context.Background(), map[string]any{"size": "M8"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "503")
	assert.Contains(t, res.Output, "no stock")
}
