package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit caps ticket payloads at maxBytes. A declared Content-Length
// over the cap is answered with 413 before the body is read; undeclared bodies
// fail with *http.MaxBytesError once they cross it. maxBytes <= 0 disables
// the cap.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			AbortPayloadTooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// AbortPayloadTooLarge writes the 413 response for a ticket over limit bytes.
func AbortPayloadTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":     "Ticket payload exceeds " + strconv.FormatInt(limit, 10) + " bytes",
		"max_bytes": limit,
	})
}
