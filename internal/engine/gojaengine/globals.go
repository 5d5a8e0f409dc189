package gojaengine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dop251/goja"
	"github.com/tidwall/gjson"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/network"
)

// prelude builds the plugin-facing globals on top of the string-only
// __host primitives installed from Go.
const prelude = `(function (host) {
	var text = function (v) {
		if (typeof v === 'string') return v;
		try {
			var s = JSON.stringify(v);
			return s === undefined ? String(v) : s;
		} catch (e) {
			return String(v);
		}
	};
	var logger = function (level) {
		return function () {
			host.log(level, Array.prototype.map.call(arguments, text));
		};
	};
	globalThis.console = {
		log: logger('info'),
		info: logger('info'),
		warn: logger('warn'),
		error: logger('error'),
		debug: logger('debug')
	};

	var request = function (req) {
		return host.request(JSON.stringify(req || {})).then(JSON.parse);
	};
	globalThis.network = {
		request: request,
		get: function (url, opts) {
			return request(Object.assign({}, opts, { url: url, method: 'GET' }));
		},
		post: function (url, body, opts) {
			return request(Object.assign({}, opts, { url: url, method: 'POST', body: body }));
		},
		configure: function (cfg) {
			cfg = cfg || {};
			var rest = {};
			Object.keys(cfg).forEach(function (k) {
				if (typeof cfg[k] !== 'function') rest[k] = cfg[k];
			});
			host.configure(JSON.stringify(rest), cfg.interceptRequest, cfg.interceptResponse, cfg.validateResponse);
		}
	};

	var makeStore = function (kind) {
		var typed = function (typ) {
			return function (key) { return JSON.parse(host.storeTyped(kind, key, typ)); };
		};
		return {
			get: function (key) { return JSON.parse(host.storeGet(kind, key)); },
			set: function (key, value) {
				host.storeSet(kind, key, value === undefined ? 'null' : JSON.stringify(value));
			},
			remove: function (key) { host.storeRemove(kind, key); },
			string: typed('string'),
			boolean: typed('boolean'),
			number: typed('number'),
			stringArray: typed('stringArray')
		};
	};
	globalThis.store = makeStore('general');
	globalThis.secureStore = makeStore('secure');
})(__host);
delete globalThis.__host;
`

func (i *Invoker) installGlobals() error {
	vm := i.vm
	host := vm.NewObject()
	natives := map[string]func(goja.FunctionCall) goja.Value{
		"log":         i.nativeLog,
		"request":     i.nativeRequest,
		"configure":   i.nativeConfigure,
		"storeGet":    i.nativeStoreGet,
		"storeTyped":  i.nativeStoreTyped,
		"storeSet":    i.nativeStoreSet,
		"storeRemove": i.nativeStoreRemove,
	}
	for name, fn := range natives {
		if err := host.Set(name, fn); err != nil {
			return err
		}
	}
	if err := vm.Set("__host", host); err != nil {
		return err
	}
	if _, err := vm.RunString(prelude); err != nil {
		return err
	}
	return i.installUtils()
}

func (i *Invoker) nativeLog(call goja.FunctionCall) goja.Value {
	level := call.Argument(0).String()
	var args []string
	if exported, ok := call.Argument(1).Export().([]any); ok {
		for _, a := range exported {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}
	i.host.Log(level, args...)
	return goja.Undefined()
}

// nativeRequest runs the request on a worker goroutine and settles the
// returned promise back on the loop.
func (i *Invoker) nativeRequest(call goja.FunctionCall) goja.Value {
	reqJSON := call.Argument(0).String()
	promise, resolve, reject := i.vm.NewPromise()

	go func() {
		respJSON, err := i.host.Request(i.ctx, reqJSON)
		_ = i.submit(func() {
			if err != nil {
				reject(i.errorValue(err))
				return
			}
			resolve(respJSON)
		})
	}()
	return i.vm.ToValue(promise)
}

func (i *Invoker) nativeConfigure(call goja.FunctionCall) goja.Value {
	hooks := network.Interceptors{}
	if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
		hooks.Request = i.requestHook(fn)
	}
	if fn, ok := goja.AssertFunction(call.Argument(2)); ok {
		hooks.Response = i.responseHook(fn)
	}
	if fn, ok := goja.AssertFunction(call.Argument(3)); ok {
		hooks.Validator = i.validatorHook(fn)
	}
	if err := i.host.Configure(call.Argument(0).String(), hooks); err != nil {
		panic(i.errorValue(err))
	}
	return goja.Undefined()
}

func (i *Invoker) nativeStoreGet(call goja.FunctionCall) goja.Value {
	raw, err := i.host.StoreGet(call.Argument(0).String(), call.Argument(1).String())
	if err != nil {
		panic(i.errorValue(err))
	}
	return i.vm.ToValue(raw)
}

func (i *Invoker) nativeStoreTyped(call goja.FunctionCall) goja.Value {
	raw, err := i.host.StoreGetTyped(call.Argument(0).String(), call.Argument(1).String(), call.Argument(2).String())
	if err != nil {
		panic(i.errorValue(err))
	}
	return i.vm.ToValue(raw)
}

func (i *Invoker) nativeStoreSet(call goja.FunctionCall) goja.Value {
	if err := i.host.StoreSet(call.Argument(0).String(), call.Argument(1).String(), call.Argument(2).String()); err != nil {
		panic(i.errorValue(err))
	}
	return goja.Undefined()
}

func (i *Invoker) nativeStoreRemove(call goja.FunctionCall) goja.Value {
	if err := i.host.StoreRemove(call.Argument(0).String(), call.Argument(1).String()); err != nil {
		panic(i.errorValue(err))
	}
	return goja.Undefined()
}

// errorValue builds the JS Error handed to plugin code for a failed host
// call. The host error id lets a rethrown value resolve back to err.
func (i *Invoker) errorValue(err error) goja.Value {
	var hostErr *engine.HostCallError
	if !errors.As(err, &hostErr) {
		hostErr = &engine.HostCallError{
			ID:      i.host.Errors().Track(err),
			Payload: map[string]any{"name": "Error", "message": err.Error()},
			Err:     err,
		}
	}

	message, _ := hostErr.Payload["message"].(string)
	obj, newErr := i.vm.New(i.vm.Get("Error"), i.vm.ToValue(message))
	if newErr != nil {
		return i.vm.ToValue(message)
	}
	parsed, parseErr := i.parse(goja.Undefined(), i.vm.ToValue(hostErr.PayloadJSON()))
	if parseErr != nil {
		return obj
	}
	payload := parsed.ToObject(i.vm)
	for _, key := range payload.Keys() {
		_ = obj.Set(key, payload.Get(key))
	}
	return obj
}

// callHook submits a plugin callback to the loop and waits for its
// settled JSON result.
func (i *Invoker) callHook(ctx context.Context, name string, fn goja.Callable, argJSON string) (string, error) {
	result := make(chan outcome, 1)
	if err := i.submit(func() {
		i.invoke(name, fn, goja.Undefined(), "["+argJSON+"]", result)
	}); err != nil {
		return "", err
	}
	return i.wait(ctx, result)
}

func (i *Invoker) requestHook(fn goja.Callable) func(context.Context, network.Request) (network.Request, error) {
	return func(ctx context.Context, req network.Request) (network.Request, error) {
		data, err := json.Marshal(req)
		if err != nil {
			return req, err
		}
		out, err := i.callHook(ctx, "interceptRequest", fn, string(data))
		if err != nil {
			return req, err
		}
		if engine.IsNull(out) {
			return req, nil
		}
		return engine.Decode[network.Request](out)
	}
}

func (i *Invoker) responseHook(fn goja.Callable) func(context.Context, network.Response) (network.Response, error) {
	return func(ctx context.Context, resp network.Response) (network.Response, error) {
		data, err := json.Marshal(resp)
		if err != nil {
			return resp, err
		}
		out, err := i.callHook(ctx, "interceptResponse", fn, string(data))
		if err != nil {
			return resp, err
		}
		if engine.IsNull(out) {
			return resp, nil
		}
		return engine.Decode[network.Response](out)
	}
}

func (i *Invoker) validatorHook(fn goja.Callable) func(context.Context, network.Response) (bool, error) {
	return func(ctx context.Context, resp network.Response) (bool, error) {
		data, err := json.Marshal(resp)
		if err != nil {
			return false, err
		}
		out, err := i.callHook(ctx, "validateResponse", fn, string(data))
		if err != nil {
			return false, err
		}
		if engine.IsNull(out) {
			return resp.Status >= 200 && resp.Status < 300, nil
		}
		return gjson.Parse(out).Bool(), nil
	}
}
