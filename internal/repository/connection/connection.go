package connection

import (
	"context"
	"errors"
)

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
)

// Hook runs once when its connection is removed.
type Hook func(ctx context.Context)
