package engine

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// HostErrorKey is the property set on plugin-visible error objects that
// came from a failed host call.
const HostErrorKey = "__hostErrorId"

// HostErrors remembers recent host-call failures so an error rethrown by
// plugin code can be matched back to its Go value.
type HostErrors struct {
	cache *lru.Cache[string, error]
}

// NewHostErrors keeps up to size errors.
func NewHostErrors(size int) *HostErrors {
	if size <= 0 {
		size = 256
	}
	cache, _ := lru.New[string, error](size)
	return &HostErrors{cache: cache}
}

// Track records err and returns the id to attach to the plugin value.
func (h *HostErrors) Track(err error) string {
	id := uuid.NewString()
	h.cache.Add(id, err)
	return id
}

// Resolve returns the error recorded under id, or nil.
func (h *HostErrors) Resolve(id string) error {
	if h == nil || id == "" {
		return nil
	}
	if err, ok := h.cache.Get(id); ok {
		return err
	}
	return nil
}

// NewThrownError builds the error for a value thrown by plugin code.
func NewThrownError(runnerID, method, name, message, hostErrorID string, errs *HostErrors) *ThrownError {
	return &ThrownError{
		RunnerID: runnerID,
		Method:   method,
		Name:     name,
		Message:  message,
		Cause:    errs.Resolve(hostErrorID),
	}
}
