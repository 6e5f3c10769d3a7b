package service

import (
	"context"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
)

type requestMetaKey struct{}

// RequestMeta carries HTTP request context down to services so audit events
// record where an action came from, without the services importing the web
// layer.
type RequestMeta struct {
	Origin string
	Agent  string
	Path   string
	Method string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

func applyRequestMeta(ctx context.Context, event *model.AuditEvent) {
	meta, ok := RequestMetaFrom(ctx)
	if !ok {
		return
	}
	if event.OriginAddress == "" {
		event.OriginAddress = meta.Origin
	}
	if event.ClientAgent == "" {
		event.ClientAgent = meta.Agent
	}
	if event.RequestPath == "" {
		event.RequestPath = meta.Path
	}
	if event.RequestMethod == "" {
		event.RequestMethod = meta.Method
	}
}
