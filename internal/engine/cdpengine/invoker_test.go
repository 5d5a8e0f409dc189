package cdpengine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/engine/cdpengine"
	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/store"
	"github.com/vrsandeep/mango-runner/internal/testutil"
)

// fakePage evaluates expressions in a goja VM owned by one goroutine,
// which is close enough to a page for the wire protocol.
type fakePage struct {
	jobs chan func()
	done chan struct{}
	once sync.Once
	vm   *goja.Runtime

	mu        sync.Mutex
	navigated []string
	cookies   []network.Cookie
}

func newFakePage() *fakePage {
	p := &fakePage{jobs: make(chan func(), 64), done: make(chan struct{}), vm: goja.New()}
	_, _ = p.vm.RunString(`var window = globalThis;
globalThis.__settleWith = function (v, ok, fail) { Promise.resolve(v).then(ok, fail); };`)
	go func() {
		for {
			select {
			case job := <-p.jobs:
				job()
			case <-p.done:
				return
			}
		}
	}()
	return p
}

func (p *fakePage) submit(job func()) error {
	select {
	case <-p.done:
		return errors.New("target closed")
	case p.jobs <- job:
		return nil
	}
}

func (p *fakePage) Evaluate(ctx context.Context, expr string) (string, error) {
	type result struct {
		raw string
		err error
	}
	out := make(chan result, 1)
	err := p.submit(func() {
		v, err := p.vm.RunString(expr)
		if err != nil {
			out <- result{err: &cdpengine.EvaluationError{Text: "Uncaught", Description: err.Error()}}
			return
		}
		settle, _ := goja.AssertFunction(p.vm.Get("__settleWith"))
		stringify, _ := goja.AssertFunction(p.vm.Get("JSON").ToObject(p.vm).Get("stringify"))
		ok := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			s, err := stringify(goja.Undefined(), call.Argument(0))
			if err != nil || goja.IsUndefined(s) {
				out <- result{err: err}
				return goja.Undefined()
			}
			out <- result{raw: s.String()}
			return goja.Undefined()
		})
		fail := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			out <- result{err: &cdpengine.EvaluationError{Text: "Uncaught (in promise)", Description: call.Argument(0).String()}}
			return goja.Undefined()
		})
		if _, err := settle(goja.Undefined(), v, ok, fail); err != nil {
			out <- result{err: err}
		}
	})
	if err != nil {
		return "", err
	}
	select {
	case r := <-out:
		return r.raw, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-p.done:
		return "", errors.New("target closed")
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	p.cookies = []network.Cookie{{Name: "session", Value: "abc"}}
	return nil
}

func (p *fakePage) Bind(ctx context.Context, name string) (<-chan string, error) {
	in := make(chan string, 256)
	out := make(chan string)
	err := p.submit(func() {
		_ = p.vm.Set(name, func(payload string) {
			select {
			case in <- payload:
			default:
			}
		})
	})
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(out)
		for {
			select {
			case payload := <-in:
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *fakePage) Cookies(ctx context.Context, url string) ([]network.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cookies, nil
}

func (p *fakePage) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

const demoRunner = `
module.exports = {
	info: { id: "web", name: "Web" },
	getInfo() { return { id: "web", name: "Web" }; },
	async search(query) { return { results: [query], isLastPage: true }; },
	nothing() {},
	fail() { throw new RangeError("out of range"); },
	async fetch(url) { return (await network.get(url)).data; },
	async fetchRethrow(url) { await network.get(url); },
	async remember(key, value) {
		await store.set(key, value);
		return [await store.get(key), await store.number(key)];
	},
	async secret() { await secureStore.set("token", "x"); },
	async configureToken(token) {
		await network.configure({
			interceptRequest: function (req) {
				req.headers = Object.assign({}, req.headers, { "X-Token": token });
				return req;
			}
		});
	}
};
`

func newInvoker(t *testing.T, page cdpengine.Page, baseURL string) *cdpengine.Invoker {
	t.Helper()
	host := engine.NewHost(engine.HostOptions{
		RunnerID: "web",
		Client:   network.NewClient("web"),
		Store:    store.New(testutil.SetupTestDB(t)),
	})
	inv, err := cdpengine.New(context.Background(), page, cdpengine.Options{
		ID:      "web",
		Source:  demoRunner,
		BaseURL: baseURL,
		Host:    host,
	})
	require.NoError(t, err)
	t.Cleanup(func() { inv.Close() })
	return inv
}

func TestInvokerCalls(t *testing.T) {
	inv := newInvoker(t, newFakePage(), "")
	ctx := context.Background()

	assert.Equal(t, engine.BackendWebView, inv.Backend())

	out, err := inv.Call(ctx, "getInfo")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"web","name":"Web"}`, out)

	out, err = inv.Call(ctx, "search", "berserk")
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":["berserk"],"isLastPage":true}`, out)

	out, err = inv.Call(ctx, "nothing")
	require.NoError(t, err)
	assert.True(t, engine.IsNull(out))

	out, err = inv.Property(ctx, "info")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"web","name":"Web"}`, out)

	ok, err := inv.MethodExists(ctx, "search")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = inv.MethodExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = inv.Call(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrMethodNotFound)

	_, err = inv.Call(ctx, "fail")
	var thrown *engine.ThrownError
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "RangeError", thrown.Name)
	assert.Equal(t, "out of range", thrown.Message)
}

func TestInvokerHostCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, "hello %s", r.Header.Get("X-Token"))
	}))
	defer server.Close()

	inv := newInvoker(t, newFakePage(), "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := inv.Call(ctx, "fetch", server.URL)
	require.NoError(t, err)
	assert.Equal(t, `"hello "`, out)

	_, err = inv.Call(ctx, "fetchRethrow", server.URL+"/missing")
	var netErr *network.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.Status)

	_, err = inv.Call(ctx, "configureToken", "t0k")
	require.NoError(t, err)
	out, err = inv.Call(ctx, "fetch", server.URL)
	require.NoError(t, err)
	assert.Equal(t, `"hello t0k"`, out)

	out, err = inv.Call(ctx, "remember", "count", 3)
	require.NoError(t, err)
	assert.JSONEq(t, `[3, 3]`, out)

	_, err = inv.Call(ctx, "secret")
	assert.ErrorIs(t, err, engine.ErrSecureStoreUnavailable)
}

func TestInvokerBaseURLAndClose(t *testing.T) {
	page := newFakePage()
	inv := newInvoker(t, page, "https://example.org")
	ctx := context.Background()

	assert.Equal(t, []string{"https://example.org"}, page.navigated)
	cookies, err := inv.Cookies(ctx, "https://example.org")
	require.NoError(t, err)
	assert.Equal(t, []network.Cookie{{Name: "session", Value: "abc"}}, cookies)

	require.NoError(t, inv.Close())
	_, err = inv.Call(ctx, "getInfo")
	assert.ErrorIs(t, err, engine.ErrRunnerNotFound)
	_, err = inv.Cookies(ctx, "https://example.org")
	assert.ErrorIs(t, err, engine.ErrRunnerNotFound)
}

func TestNewFailsOnBrokenBundle(t *testing.T) {
	page := newFakePage()
	_, err := cdpengine.New(context.Background(), page, cdpengine.Options{ID: "broken", Source: "module.exports = null"})
	var evalErr *cdpengine.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Description, "does not export")
}
