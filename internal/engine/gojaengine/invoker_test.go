package gojaengine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/engine/gojaengine"
	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/store"
	"github.com/vrsandeep/mango-runner/internal/testutil"
)

const demoRunner = `
module.exports = {
	info: { id: "demo", name: "Demo", version: 1 },
	getInfo() { return { id: "demo", name: "Demo" }; },
	async search(query, page) { return { results: [query], page: page, isLastPage: true }; },
	nothing() {},
	fail() { throw new TypeError("nope"); },
	async reject() { throw new Error("async nope"); },
	hang() { return new Promise(function () {}); },
	cyclic() { var a = {}; a.self = a; return a; },
	async fetch(url) {
		const resp = await network.get(url);
		return resp.data;
	},
	async fetchName(url) {
		try {
			await network.get(url);
			return "ok";
		} catch (e) {
			return e.name + ":" + e.response.status;
		}
	},
	async fetchRethrow(url) {
		await network.get(url);
	},
	remember(key, value) {
		store.set(key, value);
		return store.get(key);
	},
	typed(key) { return [store.string(key), store.number(key)]; },
	secret(value) { secureStore.set("token", value); return secureStore.get("token"); },
	shout(msg) { console.warn("shouting", msg, { n: 1 }); },
	titles(html) {
		const doc = utils.parseHTML(html);
		return doc.querySelectorAll("li a").map(function (a) { return a.textContent + "@" + a.getAttribute("href"); });
	},
	hrefs(html) { return utils.xpath(html, "//li/a/@href"); },
	first(html) {
		const el = utils.querySelector(html, "li.missing");
		return el === null ? "none" : el.textContent;
	},
	configureToken(token) {
		network.configure({
			headers: { "X-Default": "yes" },
			interceptRequest: function (req) {
				req.headers = Object.assign({}, req.headers, { "X-Token": token });
				return req;
			},
			validateResponse: function (resp) { return resp.status < 500; }
		});
	}
};
`

func newInvoker(t *testing.T, opts engine.HostOptions) *gojaengine.Invoker {
	t.Helper()
	if opts.RunnerID == "" {
		opts.RunnerID = "demo"
	}
	if opts.Store == nil {
		opts.Store = store.New(testutil.SetupTestDB(t))
	}
	inv, err := gojaengine.New(context.Background(), gojaengine.Options{
		ID:     opts.RunnerID,
		Source: demoRunner,
		Host:   engine.NewHost(opts),
	})
	require.NoError(t, err)
	t.Cleanup(func() { inv.Close() })
	return inv
}

func TestInvokerCalls(t *testing.T) {
	inv := newInvoker(t, engine.HostOptions{})
	ctx := context.Background()

	assert.Equal(t, "demo", inv.ID())
	assert.Equal(t, engine.BackendJS, inv.Backend())

	out, err := inv.Call(ctx, "getInfo")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"demo","name":"Demo"}`, out)

	out, err = inv.Call(ctx, "search", "one piece", 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":["one piece"],"page":2,"isLastPage":true}`, out)

	out, err = inv.Call(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = inv.Property(ctx, "info")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"demo","name":"Demo","version":1}`, out)

	out, err = inv.Property(ctx, "getInfo")
	require.NoError(t, err)
	assert.Empty(t, out, "functions are not properties")

	ok, err := inv.MethodExists(ctx, "search")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = inv.MethodExists(ctx, "info")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvokerErrors(t *testing.T) {
	inv := newInvoker(t, engine.HostOptions{})
	ctx := context.Background()

	_, err := inv.Call(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrMethodNotFound)

	_, err = inv.Call(ctx, "fail")
	var thrown *engine.ThrownError
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "TypeError", thrown.Name)
	assert.Equal(t, "nope", thrown.Message)
	assert.Equal(t, "fail", thrown.Method)

	_, err = inv.Call(ctx, "reject")
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "Error", thrown.Name)
	assert.Equal(t, "async nope", thrown.Message)

	_, err = inv.Call(ctx, "cyclic")
	assert.ErrorIs(t, err, engine.ErrInvalidReturnValue)
	var decErr *engine.DecodingError
	assert.ErrorAs(t, err, &decErr)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = inv.Call(timeoutCtx, "hang")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The loop stays usable after a caller gave up.
	_, err = inv.Call(ctx, "getInfo")
	assert.NoError(t, err)
}

func TestInvokerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	inv, err := gojaengine.New(context.Background(), gojaengine.Options{ID: "demo", Source: demoRunner})
	require.NoError(t, err)

	pending := make(chan error, 1)
	go func() {
		_, err := inv.Call(context.Background(), "hang")
		pending <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, inv.Close())
	require.NoError(t, inv.Close())

	select {
	case err := <-pending:
		assert.ErrorIs(t, err, engine.ErrRunnerNotFound)
	case <-time.After(time.Second):
		t.Fatal("pending call was not released by Close")
	}

	_, err = inv.Call(context.Background(), "getInfo")
	assert.ErrorIs(t, err, engine.ErrRunnerNotFound)
	_, err = inv.MethodExists(context.Background(), "getInfo")
	assert.ErrorIs(t, err, engine.ErrRunnerNotFound)
}

func TestNewRejectsBrokenBundles(t *testing.T) {
	_, err := gojaengine.New(context.Background(), gojaengine.Options{ID: "broken", Source: "module.exports = {"})
	assert.Error(t, err)

	_, err = gojaengine.New(context.Background(), gojaengine.Options{ID: "throws", Source: `throw new Error("boot")`})
	assert.ErrorContains(t, err, "boot")

	_, err = gojaengine.New(context.Background(), gojaengine.Options{ID: "empty", Source: "module.exports = null"})
	assert.ErrorContains(t, err, "does not export")
}

func TestInvokerNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/echo":
			fmt.Fprintf(w, "%s|%s", r.Header.Get("X-Token"), r.Header.Get("X-Default"))
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
			fmt.Fprint(w, "short and stout")
		default:
			fmt.Fprint(w, "hello")
		}
	}))
	defer server.Close()

	inv := newInvoker(t, engine.HostOptions{Client: network.NewClient("demo")})
	ctx := context.Background()

	out, err := inv.Call(ctx, "fetch", server.URL)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, out)

	out, err = inv.Call(ctx, "fetchName", server.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, `"NetworkError:404"`, out)

	_, err = inv.Call(ctx, "fetchRethrow", server.URL+"/missing")
	var thrown *engine.ThrownError
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "NetworkError", thrown.Name)
	var netErr *network.NetworkError
	require.ErrorAs(t, err, &netErr, "rethrown host errors keep their Go cause")
	assert.Equal(t, http.StatusNotFound, netErr.Status)

	_, err = inv.Call(ctx, "configureToken", "secret")
	require.NoError(t, err)

	out, err = inv.Call(ctx, "fetch", server.URL+"/echo")
	require.NoError(t, err)
	assert.Equal(t, `"secret|yes"`, out)

	out, err = inv.Call(ctx, "fetch", server.URL+"/teapot")
	require.NoError(t, err)
	assert.Equal(t, `"short and stout"`, out, "validator accepts statuses below 500")
}

func TestInvokerStore(t *testing.T) {
	inv := newInvoker(t, engine.HostOptions{})
	ctx := context.Background()

	out, err := inv.Call(ctx, "remember", "k", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out)

	out, err = inv.Call(ctx, "remember", "k", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", out)

	_, err = inv.Call(ctx, "remember", "name", "mango")
	require.NoError(t, err)
	out, err = inv.Call(ctx, "typed", "name")
	require.NoError(t, err)
	assert.JSONEq(t, `["mango", null]`, out)

	_, err = inv.Call(ctx, "secret", "hunter2")
	var thrown *engine.ThrownError
	require.ErrorAs(t, err, &thrown)
	assert.True(t, errors.Is(err, engine.ErrSecureStoreUnavailable))

	box, err := engine.NewSecretBox("passphrase")
	require.NoError(t, err)
	secured := newInvoker(t, engine.HostOptions{Secrets: box})
	out, err = secured.Call(ctx, "secret", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, `"hunter2"`, out)
}

func TestInvokerConsole(t *testing.T) {
	var buf bytes.Buffer
	inv := newInvoker(t, engine.HostOptions{Logger: zerolog.New(&buf)})

	_, err := inv.Call(context.Background(), "shout", "hi")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `shouting hi {\"n\":1}`)
	assert.Contains(t, buf.String(), `"source":"plugin"`)
}

func TestInvokerUtils(t *testing.T) {
	inv := newInvoker(t, engine.HostOptions{})
	ctx := context.Background()
	page := `<html><body><ul>
		<li><a href="/c/1">Chapter 1</a></li>
		<li><a href="/c/2">Chapter 2</a></li>
	</ul></body></html>`

	out, err := inv.Call(ctx, "titles", page)
	require.NoError(t, err)
	assert.JSONEq(t, `["Chapter 1@/c/1","Chapter 2@/c/2"]`, out)

	out, err = inv.Call(ctx, "hrefs", page)
	require.NoError(t, err)
	assert.JSONEq(t, `["/c/1","/c/2"]`, out)

	out, err = inv.Call(ctx, "first", page)
	require.NoError(t, err)
	assert.Equal(t, `"none"`, out)
}
