package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/pos_backend/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeySessionToken  = appctx.ContextKeySessionToken
)

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetSessionTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeySessionToken)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetSessionTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeySessionToken, token)
}

// EnsureCorrelationId returns ctx unchanged when it already carries an id,
// otherwise a child context with a fresh uuid.
func EnsureCorrelationId(ctx context.Context) (context.Context, string) {
	if id, ok := GetCorrelationIdFromContext(ctx); ok && id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return SetCorrelationIdInContext(ctx, id), id
}

// NewSessionToken issues an opaque guest cart token.
func NewSessionToken() string {
	return uuid.NewString()
}
