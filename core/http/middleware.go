// Package http provides gin middleware shared by dispatchd's master node
// HTTP surface (spec.md §6 names the master's HTTP routing as a thin
// external collaborator outside the core, but the ambient logging
// convention it rides on is carried from plantd the same way every
// other node logs: structured logrus fields).
package http

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// LoggerMiddleware logs one structured line per request: method, URI,
// status, latency, and the caller's IP (honoring X-Forwarded-For /
// X-Real-IP ahead of gin's RemoteIP, matching plantd's reverse-proxy
// deployment).
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		log.WithFields(log.Fields{
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"client_ip":  clientIP(c),
			"req_method": c.Request.Method,
			"req_uri":    path,
		}).Infof("%s %s status=%d", c.Request.Method, path, c.Writer.Status())
	}
}

// clientIP prefers X-Forwarded-For, then X-Real-IP, falling back to gin's
// own ClientIP resolution (which already understands both headers, but
// this makes the precedence explicit and testable).
func clientIP(c *gin.Context) string {
	if fwd := c.Request.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := c.Request.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	return c.ClientIP()
}
