package cdpengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	cdpnetwork "github.com/mafredri/cdp/protocol/network"
	cdppage "github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"

	"github.com/vrsandeep/mango-runner/internal/network"
)

// Page is the slice of a DevTools page target the invoker drives.
type Page interface {
	// Evaluate runs expr, awaits a returned promise and yields the JSON
	// of the result value, or "" for undefined.
	Evaluate(ctx context.Context, expr string) (string, error)
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Bind installs a page function named name whose string argument is
	// delivered on the returned channel until ctx ends.
	Bind(ctx context.Context, name string) (<-chan string, error)
	Cookies(ctx context.Context, url string) ([]network.Cookie, error)
	Close() error
}

// EvaluationError is an exception thrown by an evaluated expression.
type EvaluationError struct {
	Text        string
	Description string
}

func (e *EvaluationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Text, e.Description)
	}
	return e.Text
}

type devtoolsPage struct {
	devtools *devtool.DevTools
	target   *devtool.Target
	conn     *rpcc.Conn
	client   *cdp.Client
}

// OpenPage creates a fresh page target on the browser at devtoolsURL.
func OpenPage(ctx context.Context, devtoolsURL string) (Page, error) {
	dt := devtool.New(devtoolsURL)
	target, err := dt.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page target: %w", err)
	}
	conn, err := rpcc.DialContext(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		_ = dt.Close(context.Background(), target)
		return nil, fmt.Errorf("failed to connect to page target: %w", err)
	}

	p := &devtoolsPage{devtools: dt, target: target, conn: conn, client: cdp.NewClient(conn)}
	if err := p.client.Page.Enable(ctx); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.client.Runtime.Enable(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *devtoolsPage) Evaluate(ctx context.Context, expr string) (string, error) {
	args := runtime.NewEvaluateArgs(expr).SetAwaitPromise(true).SetReturnByValue(true)
	reply, err := p.client.Runtime.Evaluate(ctx, args)
	if err != nil {
		return "", err
	}
	if ex := reply.ExceptionDetails; ex != nil {
		evalErr := &EvaluationError{Text: ex.Text}
		if ex.Exception != nil && ex.Exception.Description != nil {
			evalErr.Description = *ex.Exception.Description
		}
		return "", evalErr
	}
	return string(reply.Result.Value), nil
}

func (p *devtoolsPage) Navigate(ctx context.Context, url string) error {
	loaded, err := p.client.Page.LoadEventFired(ctx)
	if err != nil {
		return err
	}
	defer loaded.Close()

	reply, err := p.client.Page.Navigate(ctx, cdppage.NewNavigateArgs(url))
	if err != nil {
		return err
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return fmt.Errorf("navigation to %s failed: %s", url, *reply.ErrorText)
	}
	_, err = loaded.Recv()
	return err
}

func (p *devtoolsPage) Bind(ctx context.Context, name string) (<-chan string, error) {
	calls, err := p.client.Runtime.BindingCalled(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(name)); err != nil {
		calls.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer calls.Close()
		for {
			ev, err := calls.Recv()
			if err != nil {
				return
			}
			if ev.Name != name {
				continue
			}
			select {
			case out <- ev.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *devtoolsPage) Cookies(ctx context.Context, url string) ([]network.Cookie, error) {
	reply, err := p.client.Network.GetCookies(ctx, cdpnetwork.NewGetCookiesArgs().SetURLs([]string{url}))
	if err != nil {
		return nil, err
	}
	cookies := make([]network.Cookie, 0, len(reply.Cookies))
	for _, c := range reply.Cookies {
		cookies = append(cookies, network.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

func (p *devtoolsPage) Close() error {
	connErr := p.conn.Close()
	closeErr := p.devtools.Close(context.Background(), p.target)
	return errors.Join(connErr, closeErr)
}

// decodeString unmarshals a JSON string result.
func decodeString(raw string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return "", err
	}
	return s, nil
}
