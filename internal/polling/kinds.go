package polling

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"pollster/internal/models"
)

// Speed selects the poll window of a kind.
type Speed string

const (
	SpeedFast Speed = "fast"
	SpeedLong Speed = "long"
)

// Kind describes one start/query/end endpoint triple.
type Kind struct {
	Name      string `json:"name"`
	StartPath string `json:"start_path"`
	// QueryPath and EndPath are prefixes; the escaped token is appended.
	QueryPath string `json:"query_path"`
	EndPath   string `json:"end_path"`
	// Method used for query and end. Start is always POST.
	Method string `json:"method"`
	Speed  Speed  `json:"speed"`
}

func (k Kind) QueryURL(token string) string {
	return k.QueryPath + "/" + url.PathEscape(token)
}

func (k Kind) EndURL(token string) string {
	return k.EndPath + "/" + url.PathEscape(token)
}

// Legacy reports whether the kind uses the /queryRequest and /endRequest form.
func (k Kind) Legacy() bool {
	return k.QueryPath == "/queryRequest"
}

func legacyKind(name, startPath string, speed Speed) Kind {
	return Kind{
		Name:      name,
		StartPath: startPath,
		QueryPath: "/queryRequest",
		EndPath:   "/endRequest",
		Method:    http.MethodGet,
		Speed:     speed,
	}
}

// ResourceKind builds a kind served under /<resource>/start, /query and /end.
func ResourceKind(name, resource string, speed Speed) Kind {
	base := "/" + strings.Trim(resource, "/")
	return Kind{
		Name:      name,
		StartPath: base + "/start",
		QueryPath: base + "/query",
		EndPath:   base + "/end",
		Method:    http.MethodPost,
		Speed:     speed,
	}
}

// DefaultKinds is the catalogue of job kinds exposed by the backend.
func DefaultKinds() []Kind {
	return []Kind{
		legacyKind("apollo", "/startRequest", SpeedFast),
		legacyKind("socrates-land", "/socrates-land", SpeedLong),
		legacyKind("apollo-land", "/startApolloMatchLand", SpeedFast),
		legacyKind("apollo-land-filtered", "/startApolloMatchLandFiltered", SpeedFast),
		legacyKind("apollo-land-exclusive", "/startApolloMatchLandExclusive", SpeedFast),
		legacyKind("apollo-land-exclusive-filtered", "/startApolloMatchLandExclusiveFiltered", SpeedFast),
		ResourceKind("page-generator", "page-generator", SpeedFast),
		ResourceKind("pages", "pages", SpeedFast),
		ResourceKind("hero", "hero", SpeedFast),
		ResourceKind("image-ideas", "image-ideas", SpeedFast),
		ResourceKind("image-to-video", "image-to-video", SpeedLong),
		ResourceKind("ad-social-image", "adSocialImage", SpeedFast),
		ResourceKind("benefit-stacks", "benefit-stacks", SpeedFast),
		ResourceKind("bonus-stacks", "bonus-stacks", SpeedFast),
		ResourceKind("faq", "faq", SpeedFast),
		ResourceKind("marketing-hooks", "marketing-hooks", SpeedFast),
		ResourceKind("marketing-hooks-image", "marketing-hooks/image", SpeedFast),
		ResourceKind("marketing-hooks-url", "marketing-hooks/url", SpeedFast),
		ResourceKind("seo", "seo", SpeedFast),
		ResourceKind("product", "product", SpeedFast),
		ResourceKind("product-placement", "product-placement", SpeedFast),
		ResourceKind("email-sequence", "email-sequence", SpeedFast),
	}
}

// Registry resolves kinds by name.
type Registry struct {
	kinds map[string]Kind
}

func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		r.kinds[k.Name] = k
	}
	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(DefaultKinds()...)
}

func (r *Registry) Lookup(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", models.ErrUnknownKind, name)
	}
	return k, nil
}

// List returns every kind sorted by name.
func (r *Registry) List() []Kind {
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
