package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/vrsandeep/mango-runner/internal/models"
)

// RouteKind is the outcome of routing an external URL.
type RouteKind string

const (
	RouteUnresolved RouteKind = "unresolved"
	RouteDirect     RouteKind = "direct"
	RouteAmbiguous  RouteKind = "ambiguous"
)

// RouteMatch is one runner that recognised the URL.
type RouteMatch struct {
	RunnerID   string                   `json:"runner_id"`
	RunnerName string                   `json:"runner_name"`
	Content    models.ContentIdentifier `json:"content"`
}

// Route tells the caller where an external URL leads. Direct routes carry
// exactly one match; ambiguous ones name every runner that matched.
type Route struct {
	Kind    RouteKind    `json:"kind"`
	URL     string       `json:"url"`
	Matches []RouteMatch `json:"matches,omitempty"`
}

// Route asks every active runner concurrently whether it can resolve url.
// A runner that fails to answer counts as no match.
func (r *Registry) Route(ctx context.Context, url string) (Route, error) {
	active, err := r.Active(ctx)
	if err != nil {
		return Route{}, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		matches []RouteMatch
	)
	for _, run := range active {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := run.HandleURL(ctx, url)
			if err != nil {
				r.logger.Warn().Err(err).Str("runner", run.ID()).Str("method", "handleURL").Msg("Runner failed to resolve URL")
				return
			}
			if id == nil {
				return
			}
			mu.Lock()
			matches = append(matches, RouteMatch{RunnerID: run.ID(), RunnerName: run.Info().Name, Content: *id})
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(matches, func(i, j int) bool { return matches[i].RunnerID < matches[j].RunnerID })
	route := Route{URL: url, Matches: matches}
	switch len(matches) {
	case 0:
		route.Kind = RouteUnresolved
	case 1:
		route.Kind = RouteDirect
	default:
		route.Kind = RouteAmbiguous
	}
	return route, nil
}
