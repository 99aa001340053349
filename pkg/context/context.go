// Package context carries request and batch identity through context.Context
// so logs and error bodies can name the caller, request and batch.
package context

import "context"

type key int

const (
	requestIDKey key = iota
	methodKey
	routeKey
	remoteIPKey
	userIDKey
	userNameKey
	batchIDKey
)

func with(ctx context.Context, k key, value string) context.Context {
	return context.WithValue(ctx, k, value)
}

func value(ctx context.Context, k key) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func SetRequestID(ctx context.Context, id string) context.Context { return with(ctx, requestIDKey, id) }
func GetRequestID(ctx context.Context) string                     { return value(ctx, requestIDKey) }

func SetMethod(ctx context.Context, method string) context.Context { return with(ctx, methodKey, method) }
func GetMethod(ctx context.Context) string                         { return value(ctx, methodKey) }

func SetRoute(ctx context.Context, route string) context.Context { return with(ctx, routeKey, route) }
func GetRoute(ctx context.Context) string                        { return value(ctx, routeKey) }

func SetRemoteIP(ctx context.Context, ip string) context.Context { return with(ctx, remoteIPKey, ip) }
func GetRemoteIP(ctx context.Context) string                     { return value(ctx, remoteIPKey) }

// SetUserID stores the caller that owns templates and uploads
func SetUserID(ctx context.Context, id string) context.Context { return with(ctx, userIDKey, id) }
func GetUserID(ctx context.Context) string                     { return value(ctx, userIDKey) }

// SetUserName stores the name recorded as a batch's uploader
func SetUserName(ctx context.Context, name string) context.Context { return with(ctx, userNameKey, name) }
func GetUserName(ctx context.Context) string                       { return value(ctx, userNameKey) }

// SetBatchID tags work done while a batch is imported
func SetBatchID(ctx context.Context, id string) context.Context { return with(ctx, batchIDKey, id) }
func GetBatchID(ctx context.Context) string                     { return value(ctx, batchIDKey) }

// Fields lists the identities set on ctx, for structured log lines
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	for k, name := range map[key]string{
		requestIDKey: "request_id",
		userIDKey:    "user_id",
		batchIDKey:   "batch_id",
	} {
		if v := value(ctx, k); v != "" {
			fields[name] = v
		}
	}
	return fields
}
