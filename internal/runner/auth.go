package runner

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/network"
)

// Which flow a caller uses is its own business; only the authenticatable
// intent is checked here.

func (r *Runner) beginAuth(ctx context.Context, method string) (context.Context, context.CancelFunc, error) {
	if !r.intents.Authenticatable {
		return nil, nil, r.unsupported(method)
	}
	return r.begin(ctx)
}

// AuthenticatedUser returns the signed-in user, nil when signed out.
func (r *Runner) AuthenticatedUser(ctx context.Context) (*models.User, error) {
	ctx, cancel, err := r.beginAuth(ctx, "getAuthenticatedUser")
	if err != nil {
		return nil, err
	}
	defer cancel()
	return engine.CallOptionalDecodable[models.User](ctx, r.inv, "getAuthenticatedUser")
}

// SignOut signs the user out of the source.
func (r *Runner) SignOut(ctx context.Context) error {
	ctx, cancel, err := r.beginAuth(ctx, "handleUserSignOut")
	if err != nil {
		return err
	}
	defer cancel()
	_, err = r.inv.Call(ctx, "handleUserSignOut")
	return err
}

// BasicAuth submits an identifier and password.
func (r *Runner) BasicAuth(ctx context.Context, identifier, password string) error {
	ctx, cancel, err := r.beginAuth(ctx, "handleBasicAuth")
	if err != nil {
		return err
	}
	defer cancel()
	_, err = r.inv.Call(ctx, "handleBasicAuth", identifier, password)
	return err
}

// WebAuthRequest returns the request a login page should be opened with.
func (r *Runner) WebAuthRequest(ctx context.Context) (network.Request, error) {
	ctx, cancel, err := r.beginAuth(ctx, "getWebAuthRequestURL")
	if err != nil {
		return network.Request{}, err
	}
	defer cancel()
	return engine.CallDecodable[network.Request](ctx, r.inv, "getWebAuthRequestURL")
}

// DidReceiveSessionCookie asks whether cookie completes the web login.
func (r *Runner) DidReceiveSessionCookie(ctx context.Context, cookie models.SessionCookie) (bool, error) {
	ctx, cancel, err := r.beginAuth(ctx, "didReceiveSessionCookieFromWebAuthResponse")
	if err != nil {
		return false, err
	}
	defer cancel()
	raw, err := r.inv.Call(ctx, "didReceiveSessionCookieFromWebAuthResponse", cookie)
	if err != nil {
		return false, err
	}
	return gjson.Parse(raw).Bool(), nil
}

// OAuthRequestURL returns the authorization URL to open.
func (r *Runner) OAuthRequestURL(ctx context.Context) (string, error) {
	ctx, cancel, err := r.beginAuth(ctx, "getOAuthRequestURL")
	if err != nil {
		return "", err
	}
	defer cancel()
	req, err := engine.CallDecodable[models.OAuthRequest](ctx, r.inv, "getOAuthRequestURL")
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// HandleOAuthCallback passes the callback URL of the OAuth flow back.
func (r *Runner) HandleOAuthCallback(ctx context.Context, response string) error {
	ctx, cancel, err := r.beginAuth(ctx, "handleOAuthCallback")
	if err != nil {
		return err
	}
	defer cancel()
	_, err = r.inv.Call(ctx, "handleOAuthCallback", response)
	return err
}
