package invokables

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogforge/core/internal/registry"
)

func TestRegister_AddsBothCallables(t *testing.T) {
	reg := registry.New(nil, true)
	Register(reg)

	_, ok := reg.GetInvokable("time.now")
	assert.True(t, ok)
	_, ok = reg.GetInvokable("http.fetch")
	assert.True(t, ok)
}

func TestNow_ReturnsRFC3339Timestamp(t *testing.T) {
	out, err := Now(context.Background(), nil)
	require.NoError(t, err)

	raw, ok := out["now"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, raw)
	assert.NoError(t, err)
}

func TestFetch_RequiresURLArgument(t *testing.T) {
	_, err := Fetch(context.Background(), map[string]any{})
	assert.Error(t, err)

	_, err = Fetch(context.Background(), map[string]any{"url": 5})
	assert.Error(t, err)
}

func TestFetch_ReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	out, err := Fetch(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status_code"])
	assert.Equal(t, "hello", out["body"])
}

func TestFetch_PropagatesRequestFailure(t *testing.T) {
	_, err := Fetch(context.Background(), map[string]any{"url": "http://127.0.0.1:0"})
	assert.Error(t, err)
}
