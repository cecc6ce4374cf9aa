package authflow

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type platformContextKey struct{}

// WithClientIP attaches the caller’s IP address to ctx. The Engine records it
// on audit events.
//
//	Docs: docs/audit.md
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the user-agent string to ctx. It feeds the
// human-readable label stored on trusted-device grants.
//
//	Docs: docs/trusted_devices.md
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithPlatform attaches a platform descriptor (for example "macOS" or
// "Android") to ctx, used together with the user agent for grant labels.
func WithPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, platformContextKey{}, platform)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func platformFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	platform, _ := ctx.Value(platformContextKey{}).(string)
	return platform
}
