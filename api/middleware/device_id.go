package middleware

import (
	"net/http"
	"strings"

	"github.com/larkspurhq/storefront-backend/pkg/logger"
)

const deviceIDHeader = "X-Device-Id"

// DeviceID lifts the storefront device identifier off the request header.
// Handlers that need one validate its presence themselves.
func DeviceID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := strings.TrimSpace(r.Header.Get(deviceIDHeader))
			if deviceID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithDeviceID(r.Context(), deviceID)
			if logg != nil {
				ctx = logg.WithDeviceID(ctx, deviceID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
