package providers

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrProviderExists reports a second verifier for the same provider type.
var ErrProviderExists = errors.New("providers: provider already registered")

const defaultOrder = 100

// Registry holds the social sign-in verifiers enabled by configuration,
// keyed by lower-cased provider type.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Verifier
}

func NewRegistry() *Registry {
	return &Registry{byKey: map[string]Verifier{}}
}

func providerKey(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func (r *Registry) Register(v Verifier) error {
	if v == nil {
		return errors.New("providers: nil verifier")
	}
	key := providerKey(v.Metadata().Type)
	if key == "" {
		return errors.New("providers: verifier metadata has no type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[key]; dup {
		return fmt.Errorf("%w: %s", ErrProviderExists, key)
	}
	r.byKey[key] = v
	return nil
}

func (r *Registry) Get(providerType string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byKey[providerKey(providerType)]
	return v, ok
}

// Metadata lists the enabled providers for the login screen, ordered by
// Order then DisplayName. A zero Order sorts as 100.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	items := make([]Metadata, 0, len(r.byKey))
	for _, v := range r.byKey {
		meta := v.Metadata()
		meta.Type = providerKey(meta.Type)
		meta.DisplayName = strings.TrimSpace(meta.DisplayName)
		meta.ButtonText = strings.TrimSpace(meta.ButtonText)
		if meta.Order == 0 {
			meta.Order = defaultOrder
		}
		items = append(items, meta)
	}
	r.mu.RUnlock()

	slices.SortFunc(items, func(a, b Metadata) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.DisplayName, b.DisplayName))
	})
	return items
}
