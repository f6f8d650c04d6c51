package middleware

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CookieRequestGuard blocks cross-site form posts that ride on the session
// cookie. A state-changing request carrying cookieName must either send a
// JSON body or set X-Requested-With; browsers only allow either cross-origin
// after a CORS preflight. Bearer-token clients are not affected.
func CookieRequestGuard(cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if isSafeMethod(req.Method) {
				return next(c)
			}
			if _, err := req.Cookie(cookieName); err != nil {
				return next(c)
			}
			if req.Header.Get(echo.HeaderXRequestedWith) != "" || isJSON(req) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "cookie-authenticated requests must send JSON")
		}
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isJSON(req *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	return err == nil && mediaType == echo.MIMEApplicationJSON
}
