package middleware

import "context"

type contextKey string

const (
	ctxStaffID contextKey = "staff_id"
	ctxRole    contextKey = "actor_role"
	ctxEmail   contextKey = "staff_email"
)

func StaffIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxStaffID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

func EmailFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxEmail)
}

// ActorFromContext is the name recorded on bookings for the authenticated
// staff member: the email when present, otherwise the staff id.
func ActorFromContext(ctx context.Context) string {
	if email := EmailFromContext(ctx); email != "" {
		return email
	}
	return StaffIDFromContext(ctx)
}

// WithStaff injects staff identity into the context. Used by tests and by
// callers that authenticate outside Auth.
func WithStaff(ctx context.Context, staffID, role, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxStaffID, staffID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxEmail, email)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
