package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/meadowlane/pickups-backend/api/responses"
	pkgerrors "github.com/meadowlane/pickups-backend/pkg/errors"
	"github.com/meadowlane/pickups-backend/pkg/logger"
)

const shopDomainHeader = "X-Shop-Domain"

type shopCtxKey struct{}

// ShopContext requires the shop domain header on every request it guards and
// stores the value in the request context.
func ShopContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shop := strings.TrimSpace(strings.ToLower(r.Header.Get(shopDomainHeader)))
			if shop == "" {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Newf(pkgerrors.CodeValidation, "%s header is required", shopDomainHeader))
				return
			}

			ctx := context.WithValue(r.Context(), shopCtxKey{}, shop)
			if logg != nil {
				ctx = logg.WithShop(ctx, shop)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithShop stores a shop domain directly, bypassing the header check. Used by
// internal callers and tests.
func WithShop(ctx context.Context, shopDomain string) context.Context {
	return context.WithValue(ctx, shopCtxKey{}, shopDomain)
}

// ShopFromContext returns the shop domain set by ShopContext.
func ShopFromContext(ctx context.Context) (string, error) {
	shop, ok := ctx.Value(shopCtxKey{}).(string)
	if !ok || shop == "" {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "shop domain missing from request context")
	}
	return shop, nil
}
