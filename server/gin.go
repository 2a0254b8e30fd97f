package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// NewGinEngine builds a Gin router and registers the OAuth2 routes.
func NewGinEngine(s *Server) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(RequestLogger(s.Logger))
	r.Use(gin.Recovery())
	r.Use(parseFormMiddleware())

	r.GET("/oauth/authorize", ginFrom(s.HandleAuthorizeRequest))
	r.POST("/oauth/authorize", ginFrom(s.HandleAuthorizeRequest))

	limited := r.Group("/oauth", s.limiter.Handler())
	limited.POST("/token", ginFrom(s.HandleTokenRequest))
	limited.POST("/revoke", ginFrom(s.HandleRevocationRequest))

	r.GET("/.well-known/openid-configuration", ginFrom(s.HandleOIDCDiscovery))
	r.GET("/.well-known/jwks.json", ginFrom(s.HandleOIDCJWKS))

	return r
}

// ginFrom adapts existing handlers (http.ResponseWriter, *http.Request) to a Gin handler.
func ginFrom(h func(http.ResponseWriter, *http.Request) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h(c.Writer, c.Request); err != nil {
			_ = c.Error(err)
		}
		c.Abort()
	}
}

// parseFormMiddleware ensures r.ParseForm() is called for urlencoded/multipart requests so r.FormValue works.
func parseFormMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		ct := r.Header.Get("Content-Type")
		if r.Method == http.MethodPost && ct != "" {
			if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
				_ = r.ParseForm()
			}
		}
		c.Next()
	}
}
