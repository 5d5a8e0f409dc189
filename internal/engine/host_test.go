package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/store"
	"github.com/vrsandeep/mango-runner/internal/testutil"
)

func newHost(t *testing.T, secrets *engine.SecretBox) (*engine.Host, *store.Store) {
	t.Helper()
	st := store.New(testutil.SetupTestDB(t))
	return engine.NewHost(engine.HostOptions{
		RunnerID: "demo",
		Client:   network.NewClient("demo"),
		Store:    st,
		Secrets:  secrets,
	}), st
}

func TestHostRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, "hello %s", r.URL.Query().Get("name"))
	}))
	defer server.Close()

	host, _ := newHost(t, nil)

	raw, err := host.Request(context.Background(), fmt.Sprintf(`{"url":%q,"params":{"name":"mango"}}`, server.URL))
	require.NoError(t, err)
	assert.Equal(t, "hello mango", gjson.Get(raw, "data").String())
	assert.Equal(t, int64(200), gjson.Get(raw, "status").Int())

	_, err = host.Request(context.Background(), fmt.Sprintf(`{"url":%q}`, server.URL+"/missing"))
	var hce *engine.HostCallError
	require.ErrorAs(t, err, &hce)
	assert.Equal(t, "NetworkError", hce.Payload["name"])
	assert.Contains(t, hce.Payload["message"], "Not Found")

	var ne *network.NetworkError
	assert.ErrorAs(t, host.Errors().Resolve(hce.ID), &ne)
	assert.Equal(t, hce.ID, gjson.Get(hce.PayloadJSON(), engine.HostErrorKey).String())

	_, err = host.Request(context.Background(), `{"method":"GET"}`)
	require.ErrorAs(t, err, &hce)
	assert.Equal(t, "DecodingError", hce.Payload["name"])
}

func TestHostRequestAfterClientClosed(t *testing.T) {
	host, _ := newHost(t, nil)
	host.Client().Close()

	_, err := host.Request(context.Background(), `{"url":"https://example.com"}`)
	var hce *engine.HostCallError
	require.ErrorAs(t, err, &hce)
	assert.ErrorIs(t, err, engine.ErrRunnerNotFound)
	assert.ErrorIs(t, host.Errors().Resolve(hce.ID), engine.ErrRunnerNotFound)
}

func TestHostConfigure(t *testing.T) {
	host, _ := newHost(t, nil)

	var seen network.Request
	err := host.Configure(`{"headers":{"X-Api":"1"},"timeout":5,"requestsPerSecond":0}`, network.Interceptors{
		Request: func(ctx context.Context, req network.Request) (network.Request, error) {
			seen = req
			return req, errors.New("stop")
		},
	})
	require.NoError(t, err)

	d := host.Client().Defaults()
	assert.Equal(t, map[string]string{"X-Api": "1"}, d.Headers)
	assert.Equal(t, 5.0, d.Timeout.Seconds())

	_, err = host.Request(context.Background(), `{"url":"https://example.com/a"}`)
	assert.Error(t, err)
	assert.Equal(t, "https://example.com/a", seen.URL)

	require.NoError(t, host.Configure("null", network.Interceptors{}))
	assert.Nil(t, host.Client().Interceptors().Request)
}

func TestHostStore(t *testing.T) {
	host, _ := newHost(t, nil)

	raw, err := host.StoreGet("general", "missing")
	require.NoError(t, err)
	assert.Equal(t, "null", raw)

	require.NoError(t, host.StoreSet("general", "name", `"mango"`))
	require.NoError(t, host.StoreSet("general", "count", `3`))
	require.NoError(t, host.StoreSet("general", "tags", `["a","b"]`))
	require.NoError(t, host.StoreSet("general", "mixed", `["a",1]`))

	raw, err = host.StoreGet("general", "name")
	require.NoError(t, err)
	assert.Equal(t, `"mango"`, raw)

	tests := []struct {
		key, typ, want string
	}{
		{"name", "string", `"mango"`},
		{"name", "number", "null"},
		{"count", "number", "3"},
		{"count", "boolean", "null"},
		{"tags", "stringArray", `["a","b"]`},
		{"mixed", "stringArray", "null"},
	}
	for _, tt := range tests {
		got, err := host.StoreGetTyped("general", tt.key, tt.typ)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s as %s", tt.key, tt.typ)
	}

	require.NoError(t, host.StoreSet("general", "name", "null"))
	raw, _ = host.StoreGet("general", "name")
	assert.Equal(t, "null", raw)

	assert.Error(t, host.StoreSet("general", "bad", `{"a":`))
	assert.Error(t, host.StoreSet("other", "k", `1`))

	assert.ErrorIs(t, host.StoreSet("secure", "token", `"x"`), engine.ErrSecureStoreUnavailable)
}

func TestHostSecureStore(t *testing.T) {
	secrets, err := engine.NewSecretBox("passphrase")
	require.NoError(t, err)
	host, st := newHost(t, secrets)

	require.NoError(t, host.StoreSet("secure", "token", `"s3cret"`))

	stored, ok, err := st.GetValue("demo", store.KindSecure, "token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(stored), "s3cret")

	raw, err := host.StoreGet("secure", "token")
	require.NoError(t, err)
	assert.Equal(t, `"s3cret"`, raw)

	general, _ := host.StoreGet("general", "token")
	assert.Equal(t, "null", general)

	// A value sealed for one slot does not open in another.
	require.NoError(t, st.SetValue("demo", store.KindSecure, "other", stored))
	_, err = host.StoreGet("secure", "other")
	assert.Error(t, err)
}

func TestHostLog(t *testing.T) {
	var buf bytes.Buffer
	host := engine.NewHost(engine.HostOptions{RunnerID: "demo", Logger: zerolog.New(&buf)})

	host.Log("warn", "rate", "limited")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"message":"rate limited"`)
	assert.Contains(t, buf.String(), `"source":"plugin"`)
}
