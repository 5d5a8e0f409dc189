package cdpengine

import (
	"encoding/json"
	"fmt"
)

// bindingName is the page function plugin proxies post host calls to.
const bindingName = "__runnerHostBinding"

// shim installs window.__runnerHost and the plugin-facing globals. Host
// calls are posted as {id, op, args} and answered through settle.
const shim = `(function () {
	if (window.__runnerHost) return true;
	var binding = window.` + bindingName + `;
	var pending = {};
	var hooks = {};
	var seq = 0;

	var post = function (op, args) {
		return new Promise(function (resolve, reject) {
			var id = ++seq;
			pending[id] = { resolve: resolve, reject: reject };
			binding(JSON.stringify({ id: id, op: op, args: args }));
		});
	};
	var thrown = function (e) {
		return {
			status: 'thrown',
			name: (e && e.name) || '',
			message: e && e.message !== undefined ? String(e.message) : String(e),
			hostErrorId: (e && e.__hostErrorId) || ''
		};
	};
	var envelope = async function (fn, self, args) {
		var data;
		try {
			data = await fn.apply(self, args);
		} catch (e) {
			return JSON.stringify(thrown(e));
		}
		try {
			return JSON.stringify({ status: 'ok', data: JSON.stringify(data) });
		} catch (e) {
			return JSON.stringify({ status: 'invalid', message: String(e) });
		}
	};

	window.__runnerHost = {
		settle: function (id, ok, payload) {
			var p = pending[id];
			if (!p) return;
			delete pending[id];
			var value = payload === '' ? undefined : JSON.parse(payload);
			if (ok) {
				p.resolve(value);
				return;
			}
			var err = new Error((value && value.message) || 'host call failed');
			Object.keys(value || {}).forEach(function (k) { err[k] = value[k]; });
			p.reject(err);
		},
		call: function (method, args) {
			var runner = window.__runner;
			if (!runner) return Promise.resolve(JSON.stringify({ status: 'runner_not_found' }));
			var fn = runner[method];
			if (typeof fn !== 'function') return Promise.resolve(JSON.stringify({ status: 'method_not_found' }));
			return envelope(fn, runner, JSON.parse(args));
		},
		hook: function (name, arg) {
			var fn = hooks[name];
			if (typeof fn !== 'function') return Promise.resolve(JSON.stringify({ status: 'method_not_found' }));
			return envelope(fn, undefined, [JSON.parse(arg)]);
		}
	};

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
			binding(JSON.stringify({ id: 0, op: 'log', args: [level, Array.prototype.map.call(arguments, text)] }));
		};
	};
	window.console = Object.assign(window.console || {}, {
		log: logger('info'),
		info: logger('info'),
		warn: logger('warn'),
		error: logger('error'),
		debug: logger('debug')
	});

	var request = function (req) { return post('request', [JSON.stringify(req || {})]); };
	window.network = {
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
			hooks = {
				interceptRequest: cfg.interceptRequest,
				interceptResponse: cfg.interceptResponse,
				validateResponse: cfg.validateResponse
			};
			return post('configure', [JSON.stringify(rest), {
				request: typeof cfg.interceptRequest === 'function',
				response: typeof cfg.interceptResponse === 'function',
				validator: typeof cfg.validateResponse === 'function'
			}]);
		}
	};

	var makeStore = function (kind) {
		var typed = function (typ) {
			return function (key) { return post('storeTyped', [kind, key, typ]); };
		};
		return {
			get: function (key) { return post('storeGet', [kind, key]); },
			set: function (key, value) {
				return post('storeSet', [kind, key, value === undefined ? 'null' : JSON.stringify(value)]);
			},
			remove: function (key) { return post('storeRemove', [kind, key]); },
			string: typed('string'),
			boolean: typed('boolean'),
			number: typed('number'),
			stringArray: typed('stringArray')
		};
	};
	window.store = makeStore('general');
	window.secureStore = makeStore('secure');
	return true;
})()`

// bundleScript evaluates a CommonJS bundle and publishes its exports as
// window.__runner.
func bundleScript(source string) string {
	return `(function () {
	var module = { exports: {} };
	(function (module, exports) {
` + source + `
	})(module, module.exports);
	var runner = module.exports;
	if (runner === null || (typeof runner !== 'object' && typeof runner !== 'function')) {
		throw new Error('runner does not export an object');
	}
	window.__runner = runner;
	return true;
})()`
}

func callScript(method, argsJSON string) string {
	return fmt.Sprintf("window.__runnerHost ? window.__runnerHost.call(%s, %s) : JSON.stringify({status: 'runner_not_found'})",
		jsString(method), jsString(argsJSON))
}

func hookScript(name, argJSON string) string {
	return fmt.Sprintf("window.__runnerHost.hook(%s, %s)", jsString(name), jsString(argJSON))
}

func settleScript(id int64, ok bool, payload string) string {
	return fmt.Sprintf("window.__runnerHost.settle(%d, %t, %s)", id, ok, jsString(payload))
}

func existsScript(name string) string {
	return fmt.Sprintf("!!window.__runner && typeof window.__runner[%s] === 'function'", jsString(name))
}

func propertyScript(name string) string {
	return fmt.Sprintf(`(function () {
	var v = window.__runner && window.__runner[%s];
	return v === undefined || typeof v === 'function' ? '' : JSON.stringify(v);
})()`, jsString(name))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
