// Package cdpengine runs runner bundles inside a browser page driven over
// the Chrome DevTools protocol. Plugin host calls travel through a page
// binding and are answered by evaluating back into the page.
package cdpengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/network"
)

// Options configures a page-backed runner.
type Options struct {
	ID      string
	Source  string
	BaseURL string
	Host    *engine.Host
}

// Invoker is the DevTools implementation of engine.Invoker.
type Invoker struct {
	id   string
	page Page
	host *engine.Host

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once
}

// Open creates a page on the browser at devtoolsURL and loads the runner.
func Open(ctx context.Context, devtoolsURL string, opts Options) (*Invoker, error) {
	page, err := OpenPage(ctx, devtoolsURL)
	if err != nil {
		return nil, err
	}
	return New(ctx, page, opts)
}

// New loads the runner into page. The invoker owns page from here on.
func New(ctx context.Context, page Page, opts Options) (*Invoker, error) {
	if opts.Host == nil {
		opts.Host = engine.NewHost(engine.HostOptions{RunnerID: opts.ID})
	}
	serveCtx, cancel := context.WithCancel(context.Background())
	inv := &Invoker{id: opts.ID, page: page, host: opts.Host, ctx: serveCtx, cancel: cancel}

	if err := inv.boot(ctx, opts); err != nil {
		inv.Close()
		return nil, err
	}
	return inv, nil
}

func (i *Invoker) boot(ctx context.Context, opts Options) error {
	if opts.BaseURL != "" {
		if err := i.page.Navigate(ctx, opts.BaseURL); err != nil {
			return fmt.Errorf("failed to open base url for %s: %w", opts.ID, err)
		}
	}

	calls, err := i.page.Bind(i.ctx, bindingName)
	if err != nil {
		return fmt.Errorf("failed to install host binding: %w", err)
	}
	i.wg.Add(1)
	go i.serve(calls)

	if _, err := i.page.Evaluate(ctx, shim); err != nil {
		return fmt.Errorf("failed to install host shim: %w", err)
	}
	if _, err := i.page.Evaluate(ctx, bundleScript(opts.Source)); err != nil {
		return fmt.Errorf("failed to evaluate runner %s: %w", opts.ID, err)
	}
	return nil
}

func (i *Invoker) ID() string      { return i.id }
func (i *Invoker) Backend() string { return engine.BackendWebView }

// Host returns the host surface the page calls into.
func (i *Invoker) Host() *engine.Host { return i.host }

func (i *Invoker) evaluate(ctx context.Context, expr string) (string, error) {
	if i.closed.Load() {
		return "", &engine.RunnerNotFoundError{RunnerID: i.id}
	}
	out, err := i.page.Evaluate(ctx, expr)
	if err != nil && i.closed.Load() {
		return "", &engine.RunnerNotFoundError{RunnerID: i.id}
	}
	return out, err
}

func (i *Invoker) MethodExists(ctx context.Context, name string) (bool, error) {
	out, err := i.evaluate(ctx, existsScript(name))
	if err != nil {
		return false, err
	}
	return gjson.Parse(out).Bool(), nil
}

func (i *Invoker) Property(ctx context.Context, name string) (string, error) {
	out, err := i.evaluate(ctx, propertyScript(name))
	if err != nil {
		return "", err
	}
	return decodeString(out)
}

// Call evaluates method inside the page and unwraps the result envelope.
func (i *Invoker) Call(ctx context.Context, method string, args ...any) (string, error) {
	argsJSON, err := engine.EncodeArgs(args...)
	if err != nil {
		return "", err
	}
	out, err := i.evaluate(ctx, callScript(method, argsJSON))
	if err != nil {
		return "", err
	}
	return i.unwrap(method, out)
}

func (i *Invoker) unwrap(method, out string) (string, error) {
	env, err := decodeString(out)
	if err != nil {
		return "", &engine.InvalidReturnValueError{
			RunnerID: i.id,
			Method:   method,
			Err:      &engine.DecodingError{Type: "envelope", Reason: "malformed result envelope", Err: err},
		}
	}

	result := gjson.Parse(env)
	switch result.Get("status").String() {
	case "ok":
		return result.Get("data").String(), nil
	case "method_not_found":
		return "", &engine.MethodNotFoundError{RunnerID: i.id, Method: method}
	case "runner_not_found":
		return "", &engine.RunnerNotFoundError{RunnerID: i.id}
	case "thrown":
		return "", engine.NewThrownError(i.id, method,
			result.Get("name").String(), result.Get("message").String(), result.Get("hostErrorId").String(),
			i.host.Errors())
	case "invalid":
		return "", &engine.InvalidReturnValueError{
			RunnerID: i.id,
			Method:   method,
			Err:      &engine.DecodingError{Type: "value", Reason: "could not stringify: " + result.Get("message").String()},
		}
	}
	return "", &engine.InvalidReturnValueError{
		RunnerID: i.id,
		Method:   method,
		Err:      &engine.DecodingError{Type: "envelope", Reason: "unknown status " + result.Get("status").Raw},
	}
}

// Cookies returns the page's cookies for url, used to confirm a web login.
func (i *Invoker) Cookies(ctx context.Context, url string) ([]network.Cookie, error) {
	if i.closed.Load() {
		return nil, &engine.RunnerNotFoundError{RunnerID: i.id}
	}
	return i.page.Cookies(ctx, url)
}

// Close stops serving host calls and closes the page target.
func (i *Invoker) Close() error {
	var err error
	i.once.Do(func() {
		i.closed.Store(true)
		i.cancel()
		err = i.page.Close()
		i.wg.Wait()
		i.host.Client().Close()
	})
	return err
}

// hostCall is one message posted through the page binding.
type hostCall struct {
	ID   int64             `json:"id"`
	Op   string            `json:"op"`
	Args []json.RawMessage `json:"args"`
}

func (c hostCall) arg(n int) string {
	if n >= len(c.Args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(c.Args[n], &s); err != nil {
		return string(c.Args[n])
	}
	return s
}

func (i *Invoker) serve(calls <-chan string) {
	defer i.wg.Done()
	var handlers sync.WaitGroup
	defer handlers.Wait()

	for payload := range calls {
		var call hostCall
		if err := json.Unmarshal([]byte(payload), &call); err != nil {
			logger := i.host.Logger()
			logger.Warn().Err(err).Msg("Dropping malformed host call")
			continue
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			i.handle(call)
		}()
	}
}

func (i *Invoker) handle(call hostCall) {
	var (
		payload string
		err     error
	)
	switch call.Op {
	case "log":
		var args []string
		if len(call.Args) > 1 {
			_ = json.Unmarshal(call.Args[1], &args)
		}
		i.host.Log(call.arg(0), args...)
		return
	case "request":
		payload, err = i.host.Request(i.ctx, call.arg(0))
	case "configure":
		err = i.configure(call)
	case "storeGet":
		payload, err = i.host.StoreGet(call.arg(0), call.arg(1))
	case "storeTyped":
		payload, err = i.host.StoreGetTyped(call.arg(0), call.arg(1), call.arg(2))
	case "storeSet":
		err = i.host.StoreSet(call.arg(0), call.arg(1), call.arg(2))
	case "storeRemove":
		err = i.host.StoreRemove(call.arg(0), call.arg(1))
	default:
		err = fmt.Errorf("unknown host operation %q", call.Op)
	}

	ok := err == nil
	if !ok {
		payload = i.errorPayload(err)
	}
	if call.ID == 0 {
		return
	}
	if _, evalErr := i.page.Evaluate(i.ctx, settleScript(call.ID, ok, payload)); evalErr != nil && !i.closed.Load() {
		logger := i.host.Logger()
		logger.Warn().Err(evalErr).Str("op", call.Op).Msg("Failed to settle host call")
	}
}

func (i *Invoker) errorPayload(err error) string {
	var hostErr *engine.HostCallError
	if !errors.As(err, &hostErr) {
		hostErr = &engine.HostCallError{
			ID:      i.host.Errors().Track(err),
			Payload: map[string]any{"name": "Error", "message": err.Error()},
			Err:     err,
		}
	}
	return hostErr.PayloadJSON()
}

func (i *Invoker) configure(call hostCall) error {
	var present struct {
		Request   bool `json:"request"`
		Response  bool `json:"response"`
		Validator bool `json:"validator"`
	}
	if len(call.Args) > 1 {
		_ = json.Unmarshal(call.Args[1], &present)
	}

	hooks := network.Interceptors{}
	if present.Request {
		hooks.Request = func(ctx context.Context, req network.Request) (network.Request, error) {
			out, err := i.hook(ctx, "interceptRequest", req)
			if err != nil || engine.IsNull(out) {
				return req, err
			}
			return engine.Decode[network.Request](out)
		}
	}
	if present.Response {
		hooks.Response = func(ctx context.Context, resp network.Response) (network.Response, error) {
			out, err := i.hook(ctx, "interceptResponse", resp)
			if err != nil || engine.IsNull(out) {
				return resp, err
			}
			return engine.Decode[network.Response](out)
		}
	}
	if present.Validator {
		hooks.Validator = func(ctx context.Context, resp network.Response) (bool, error) {
			out, err := i.hook(ctx, "validateResponse", resp)
			if err != nil {
				return false, err
			}
			if engine.IsNull(out) {
				return resp.Status >= 200 && resp.Status < 300, nil
			}
			return gjson.Parse(out).Bool(), nil
		}
	}
	return i.host.Configure(call.arg(0), hooks)
}

func (i *Invoker) hook(ctx context.Context, name string, arg any) (string, error) {
	data, err := json.Marshal(arg)
	if err != nil {
		return "", err
	}
	out, err := i.evaluate(ctx, hookScript(name, string(data)))
	if err != nil {
		return "", err
	}
	return i.unwrap(name, out)
}
