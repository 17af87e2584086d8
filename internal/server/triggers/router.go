// Package triggers runs handlers after documents are created. Handlers are
// registered against path patterns such as "posts/{postId}" and run in the
// background, after the write that fired them has committed.
package triggers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/rollcall/internal/logging"
)

// Event describes a created document.
type Event struct {
	// Path is the full document path, e.g. "users/u1/profileViews/v9".
	Path   string
	Params map[string]string
	Fields map[string]any
}

// Handler reacts to a created document.
type Handler func(ctx context.Context, ev Event) error

type route struct {
	pattern  string
	segments []string
	handler  Handler
}

// match returns the path params when path has the same number of segments
// and every literal segment matches.
func (r route) match(path string) (map[string]string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != len(r.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, seg := range r.segments {
		if name, ok := paramName(seg); ok {
			if parts[i] == "" {
				return nil, false
			}
			params[name] = parts[i]
			continue
		}
		if seg != parts[i] {
			return nil, false
		}
	}
	return params, true
}

func paramName(seg string) (string, bool) {
	if len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

type Router struct {
	mu     sync.RWMutex
	routes []route
	wg     sync.WaitGroup
	logger logging.Logger
}

func NewRouter(l logging.Logger) *Router {
	if l == nil {
		l = logging.Nop()
	}
	return &Router{logger: l.With("module", "triggers")}
}

// Handle registers h for documents created at paths matching pattern.
func (r *Router) Handle(pattern string, h Handler) error {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("invalid trigger pattern %q", pattern)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{pattern: pattern, segments: segments, handler: h})
	return nil
}

// match binds one run per route matching path.
func (r *Router) match(path string, fields map[string]any) []func(context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []func(context.Context)
	for _, rt := range r.routes {
		params, ok := rt.match(path)
		if !ok {
			continue
		}
		ev := Event{Path: path, Params: params, Fields: fields}
		h, pattern := rt.handler, rt.pattern
		out = append(out, func(ctx context.Context) {
			if err := h(ctx, ev); err != nil {
				r.logger.Error(ctx, "trigger failed", "pattern", pattern, "path", path, "error", err)
				return
			}
			r.logger.Debug(ctx, "trigger done", "pattern", pattern, "path", path)
		})
	}
	return out
}

// Dispatch starts every handler matching path in its own goroutine and
// returns the number started. Handlers outlive the caller's cancellation
// but keep its values.
func (r *Router) Dispatch(ctx context.Context, path string, fields map[string]any) int {
	runs := r.match(path, fields)
	bg := context.WithoutCancel(ctx)
	for _, run := range runs {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			run(bg)
		}()
	}
	return len(runs)
}

// Wait blocks until all dispatched handlers have returned.
func (r *Router) Wait() {
	r.wg.Wait()
}
