package controller

import (
	"context"

	"github.com/sharetube/officedj/internal/domain"
)

type contextKey int

const (
	userCtxKey contextKey = iota
	clientCtxKey
)

func (c controller) getUserFromCtx(ctx context.Context) domain.User {
	user, ok := ctx.Value(userCtxKey).(domain.User)
	if !ok {
		return domain.User{}
	}

	return user
}

func (c controller) getClientFromCtx(ctx context.Context) *client {
	cl, ok := ctx.Value(clientCtxKey).(*client)
	if !ok {
		return nil
	}

	return cl
}

func withUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

func withClient(ctx context.Context, cl *client) context.Context {
	return context.WithValue(ctx, clientCtxKey, cl)
}
