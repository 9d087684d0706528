package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the canonical HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID string is stored so
	// that handlers and other middleware can retrieve it without reading the response header.
	RequestIDKey = "request_id"

	// maxRequestIDLength bounds inbound identifiers so a hostile client cannot
	// stuff arbitrary payloads into every log line.
	maxRequestIDLength = 128
)

// RequestIDMiddleware ensures every request carries a unique identifier. An
// inbound X-Request-ID from an upstream proxy or caller is reused as long as
// it fits maxRequestIDLength; otherwise a fresh UUID v4 is generated. The ID
// is stored in gin.Context under RequestIDKey for the logging middleware and
// echoed back in the response header so clients can correlate their request
// with server-side log entries.
//
// Register this middleware before anything that logs:
//
//	router.Use(gin.Recovery())
//	router.Use(RequestIDMiddleware())
//	router.Use(LoggerMiddleware(cfg))
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
