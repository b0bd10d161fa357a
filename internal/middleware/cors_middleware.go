package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/GolferGeek/sync-focus/internal/errors"
)

// Origins is the browser origin allow list. "*" allows every origin.
type Origins map[string]struct{}

func NewOrigins(allowedOrigins []string) Origins {
	allowed := make(Origins, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = struct{}{}
	}
	return allowed
}

// Allows reports whether a request from origin may proceed. Requests without
// an Origin header do not come from a browser and are always allowed.
func (o Origins) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := o["*"]; ok {
		return true
	}
	_, ok := o[origin]
	return ok
}

// CheckOrigin adapts the allow list for the websocket upgrader.
func (o Origins) CheckOrigin(r *http.Request) bool {
	return o.Allows(r.Header.Get("Origin"))
}

func CORS(origins Origins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := origins["*"]; ok {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if _, ok := origins[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization,Content-Type")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthorizedDomain rejects sign-in attempts from browser origins that are not
// on the allow list.
func AuthorizedDomain(origins Origins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if !origins.Allows(origin) {
			writeError(c, apperrors.UnauthorizedDomain(origin))
			return
		}
		c.Next()
	}
}
