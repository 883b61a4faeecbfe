// Package router maps outbox event types to Kafka topics.
package router

import (
	"sort"
	"strings"
)

// Route sends every event type starting with Prefix to Topic.
type Route struct {
	Prefix string
	Topic  string
}

// DefaultRoutes is the production routing table.
var DefaultRoutes = []Route{
	{Prefix: "workitem.", Topic: "kyb.workitem-events"},
	{Prefix: "case.", Topic: "kyb.case-events"},
	{Prefix: "document.", Topic: "kyb.document-events"},
	{Prefix: "risk.", Topic: "kyb.risk-events"},
}

// DefaultFallbackTopic receives events no route matches.
const DefaultFallbackTopic = "kyb.events"

// Router resolves topics by longest matching prefix, so resolution does not
// depend on the order routes were configured in.
type Router struct {
	routes   []Route
	fallback string
}

func New(routes []Route, fallback string) *Router {
	sorted := make([]Route, 0, len(routes))
	for _, r := range routes {
		if r.Prefix == "" || r.Topic == "" {
			continue
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	if fallback == "" {
		fallback = DefaultFallbackTopic
	}
	return &Router{routes: sorted, fallback: fallback}
}

// Default returns a router over DefaultRoutes.
func Default() *Router {
	return New(DefaultRoutes, DefaultFallbackTopic)
}

// Topic returns the destination topic for eventType.
func (r *Router) Topic(eventType string) string {
	for _, route := range r.routes {
		if strings.HasPrefix(eventType, route.Prefix) {
			return route.Topic
		}
	}
	return r.fallback
}

// Topics lists every distinct topic the router can resolve to.
func (r *Router) Topics() []string {
	seen := map[string]bool{r.fallback: true}
	out := []string{r.fallback}
	for _, route := range r.routes {
		if !seen[route.Topic] {
			seen[route.Topic] = true
			out = append(out, route.Topic)
		}
	}
	sort.Strings(out)
	return out
}

// ParseRoutes reads "prefix=topic" pairs as supplied through configuration.
func ParseRoutes(pairs []string) []Route {
	var routes []Route
	for _, pair := range pairs {
		prefix, topic, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		routes = append(routes, Route{Prefix: strings.TrimSpace(prefix), Topic: strings.TrimSpace(topic)})
	}
	return routes
}
