package clients

import "context"

type contextKey struct{}

// ContextKey carries the *Client of the current request.
var ContextKey = contextKey{}

func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, ContextKey, c)
}

func FromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(ContextKey).(*Client)
	return c
}
