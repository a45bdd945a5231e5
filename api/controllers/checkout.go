package controllers

import (
	"net/http"

	"github.com/cinenext/storefront-backend/api/responses"
	checkout "github.com/cinenext/storefront-backend/internal/checkout"
	"github.com/cinenext/storefront-backend/pkg/logger"
)

// Checkout executes an atomic checkout of the caller's cart.
func Checkout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
