// Package gojaengine runs runner bundles inside an in-process goja VM.
// Each VM is owned by one event-loop goroutine; everything that touches
// the VM is a job submitted to that loop.
package gojaengine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dop251/goja"

	"github.com/vrsandeep/mango-runner/internal/engine"
)

// Options configures a goja-backed runner.
type Options struct {
	ID       string
	Filename string
	Source   string
	Host     *engine.Host
}

// Invoker is the goja implementation of engine.Invoker.
type Invoker struct {
	id   string
	host *engine.Host

	jobs chan func()
	done chan struct{}
	once sync.Once

	// ctx bounds host work started on behalf of the script.
	ctx    context.Context
	cancel context.CancelFunc

	// Only touched on the loop goroutine.
	vm        *goja.Runtime
	exports   *goja.Object
	stringify goja.Callable
	parse     goja.Callable
}

// outcome is the settled result of one call.
type outcome struct {
	raw string
	err error
}

// New starts the loop, installs the host globals and evaluates the bundle.
func New(ctx context.Context, opts Options) (*Invoker, error) {
	if opts.Host == nil {
		opts.Host = engine.NewHost(engine.HostOptions{RunnerID: opts.ID})
	}
	if opts.Filename == "" {
		opts.Filename = opts.ID + ".js"
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	inv := &Invoker{
		id:     opts.ID,
		host:   opts.Host,
		jobs:   make(chan func(), 64),
		done:   make(chan struct{}),
		ctx:    loopCtx,
		cancel: cancel,
		vm:     goja.New(),
	}
	go inv.loop()

	errCh := make(chan error, 1)
	if err := inv.submit(func() { errCh <- inv.boot(opts) }); err != nil {
		return nil, err
	}

	select {
	case err := <-errCh:
		if err != nil {
			inv.Close()
			return nil, err
		}
		return inv, nil
	case <-ctx.Done():
		inv.Close()
		return nil, ctx.Err()
	}
}

func (i *Invoker) loop() {
	for {
		select {
		case job := <-i.jobs:
			job()
		case <-i.done:
			return
		}
	}
}

func (i *Invoker) submit(job func()) error {
	select {
	case <-i.done:
		return &engine.RunnerNotFoundError{RunnerID: i.id}
	default:
	}
	select {
	case i.jobs <- job:
		return nil
	case <-i.done:
		return &engine.RunnerNotFoundError{RunnerID: i.id}
	}
}

func (i *Invoker) boot(opts Options) error {
	vm := i.vm
	jsonObj := vm.Get("JSON").ToObject(vm)
	i.stringify, _ = goja.AssertFunction(jsonObj.Get("stringify"))
	i.parse, _ = goja.AssertFunction(jsonObj.Get("parse"))

	if err := i.installGlobals(); err != nil {
		return fmt.Errorf("failed to install host globals: %w", err)
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}

	wrapped := "(function(module, exports) {\n" + opts.Source + "\n})"
	program, err := goja.Compile(opts.Filename, wrapped, false)
	if err != nil {
		return fmt.Errorf("failed to compile runner %s: %w", opts.ID, err)
	}
	factory, err := vm.RunProgram(program)
	if err != nil {
		return fmt.Errorf("failed to evaluate runner %s: %w", opts.ID, err)
	}
	fn, ok := goja.AssertFunction(factory)
	if !ok {
		return fmt.Errorf("runner %s: module wrapper is not callable", opts.ID)
	}
	if _, err := fn(goja.Undefined(), module, exports); err != nil {
		return fmt.Errorf("failed to execute runner %s: %w", opts.ID, err)
	}

	obj := module.Get("exports")
	if obj == nil || goja.IsUndefined(obj) || goja.IsNull(obj) {
		return fmt.Errorf("runner %s does not export an object", opts.ID)
	}
	i.exports = obj.ToObject(vm)
	return nil
}

func (i *Invoker) ID() string      { return i.id }
func (i *Invoker) Backend() string { return engine.BackendJS }

// Host returns the host surface the script calls into.
func (i *Invoker) Host() *engine.Host { return i.host }

// MethodExists reports whether module.exports has a function named name.
func (i *Invoker) MethodExists(ctx context.Context, name string) (bool, error) {
	result := make(chan bool, 1)
	if err := i.submit(func() {
		_, ok := goja.AssertFunction(i.exports.Get(name))
		result <- ok
	}); err != nil {
		return false, err
	}
	select {
	case ok := <-result:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-i.done:
		return false, &engine.RunnerNotFoundError{RunnerID: i.id}
	}
}

// Property returns the JSON of a non-function export, "" when absent.
func (i *Invoker) Property(ctx context.Context, name string) (string, error) {
	result := make(chan outcome, 1)
	if err := i.submit(func() {
		v := i.exports.Get(name)
		if v == nil || goja.IsUndefined(v) {
			result <- outcome{}
			return
		}
		if _, isFn := goja.AssertFunction(v); isFn {
			result <- outcome{}
			return
		}
		raw, err := i.toJSON(name, v)
		result <- outcome{raw: raw, err: err}
	}); err != nil {
		return "", err
	}
	return i.wait(ctx, result)
}

// Call invokes an exported method with JSON-encoded arguments and awaits
// its promise. A cancelled ctx stops waiting; the script keeps running.
func (i *Invoker) Call(ctx context.Context, method string, args ...any) (string, error) {
	argsJSON, err := engine.EncodeArgs(args...)
	if err != nil {
		return "", err
	}

	result := make(chan outcome, 1)
	if err := i.submit(func() {
		fn, ok := goja.AssertFunction(i.exports.Get(method))
		if !ok {
			result <- outcome{err: &engine.MethodNotFoundError{RunnerID: i.id, Method: method}}
			return
		}
		i.invoke(method, fn, i.exports, argsJSON, result)
	}); err != nil {
		return "", err
	}
	return i.wait(ctx, result)
}

// invoke runs on the loop. It calls fn with the parsed argument array and
// delivers exactly one outcome, now or when the returned promise settles.
func (i *Invoker) invoke(method string, fn goja.Callable, this goja.Value, argsJSON string, result chan<- outcome) {
	args, err := i.parseArgs(argsJSON)
	if err != nil {
		result <- outcome{err: err}
		return
	}

	value, err := fn(this, args...)
	if err != nil {
		result <- outcome{err: i.thrown(method, err)}
		return
	}
	i.settle(method, value, result)
}

func (i *Invoker) settle(method string, value goja.Value, result chan<- outcome) {
	obj, isObj := value.(*goja.Object)
	if !isObj {
		raw, err := i.toJSON(method, value)
		result <- outcome{raw: raw, err: err}
		return
	}
	then, isThenable := goja.AssertFunction(obj.Get("then"))
	if !isThenable {
		raw, err := i.toJSON(method, value)
		result <- outcome{raw: raw, err: err}
		return
	}

	var once sync.Once
	onFulfilled := i.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		once.Do(func() {
			raw, err := i.toJSON(method, call.Argument(0))
			result <- outcome{raw: raw, err: err}
		})
		return goja.Undefined()
	})
	onRejected := i.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		once.Do(func() {
			result <- outcome{err: i.thrownValue(method, call.Argument(0))}
		})
		return goja.Undefined()
	})
	if _, err := then(obj, onFulfilled, onRejected); err != nil {
		once.Do(func() { result <- outcome{err: i.thrown(method, err)} })
	}
}

func (i *Invoker) wait(ctx context.Context, result <-chan outcome) (string, error) {
	select {
	case out := <-result:
		return out.raw, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-i.done:
		return "", &engine.RunnerNotFoundError{RunnerID: i.id}
	}
}

func (i *Invoker) parseArgs(argsJSON string) ([]goja.Value, error) {
	parsed, err := i.parse(goja.Undefined(), i.vm.ToValue(argsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse call arguments: %w", err)
	}
	arr := parsed.ToObject(i.vm)
	n := int(arr.Get("length").ToInteger())
	args := make([]goja.Value, n)
	for k := 0; k < n; k++ {
		args[k] = arr.Get(strconv.Itoa(k))
	}
	return args, nil
}

// toJSON stringifies a value inside the VM. undefined becomes "".
func (i *Invoker) toJSON(method string, v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) {
		return "", nil
	}
	out, err := i.stringify(goja.Undefined(), v)
	if err != nil {
		return "", &engine.InvalidReturnValueError{
			RunnerID: i.id,
			Method:   method,
			Err:      &engine.DecodingError{Type: "value", Reason: "could not stringify: " + err.Error(), Err: err},
		}
	}
	if goja.IsUndefined(out) {
		return "", nil
	}
	return out.String(), nil
}

func (i *Invoker) thrown(method string, err error) error {
	if ex, ok := err.(*goja.Exception); ok {
		return i.thrownValue(method, ex.Value())
	}
	if _, ok := err.(*goja.InterruptedError); ok {
		return &engine.RunnerNotFoundError{RunnerID: i.id}
	}
	return &engine.ThrownError{RunnerID: i.id, Method: method, Message: err.Error(), Cause: err}
}

func (i *Invoker) thrownValue(method string, v goja.Value) error {
	if obj, ok := v.(*goja.Object); ok {
		return engine.NewThrownError(i.id, method,
			stringProp(obj, "name"), stringProp(obj, "message"), stringProp(obj, engine.HostErrorKey),
			i.host.Errors())
	}
	msg := "undefined"
	if v != nil {
		msg = v.String()
	}
	return engine.NewThrownError(i.id, method, "", msg, "", i.host.Errors())
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// Close stops the loop and interrupts any running script. Pending and
// later calls fail with RunnerNotFound.
func (i *Invoker) Close() error {
	i.once.Do(func() {
		i.cancel()
		i.vm.Interrupt("runner closed")
		close(i.done)
		i.host.Client().Close()
	})
	return nil
}
