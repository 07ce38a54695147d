package httpx

import (
	"github.com/gin-gonic/gin"
)

// Parse binds path (uri tag), query (form tag) and, when present, the JSON body.
// Missing tags are not errors; a malformed body is ErrBadRequest.
func Parse(c *gin.Context, req interface{}) error {
	_ = c.ShouldBindUri(req)
	_ = c.ShouldBindQuery(req)

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			return ErrBadRequest.WithMsgf("bad request: %v", err).Wrap(err)
		}
	}
	return nil
}
