// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// originMatcher matches request origins against glob patterns such as
// "https://*.hubbub.social". A "*" never crosses a dot.
type originMatcher struct {
	patterns []glob.Glob
}

func newOriginMatcher(origins []string) (*originMatcher, error) {
	m := &originMatcher{}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		g, err := glob.Compile(strings.ToLower(o), '.')
		if err != nil {
			return nil, oops.Code("HTTP_INVALID_ORIGIN").With("origin", o).Wrap(err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

func (m *originMatcher) Match(origin string) bool {
	origin = strings.ToLower(origin)
	for _, g := range m.patterns {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

func newCORS(origins []string) (func(http.Handler) http.Handler, error) {
	matcher, err := newOriginMatcher(origins)
	if err != nil {
		return nil, err
	}
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return matcher.Match(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}), nil
}
