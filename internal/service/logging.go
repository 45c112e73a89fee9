package service

import (
	"context"
	"log/slog"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"google.golang.org/grpc/codes"
)

// logUnexpected logs errors outside the business taxonomy. Expected outcomes
// such as NotFound or InsufficientStock are left to the caller.
func logUnexpected(ctx context.Context, msg string, err error, attrs ...any) {
	if domain.Code(err) != codes.Internal {
		return
	}
	slog.ErrorContext(ctx, msg, append(attrs, "error", err)...)
}
