package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/hotkeyd/internal/dispatch"
)

// sanitizeBase turns a configured base_path into a gin group prefix: empty for
// root, otherwise one leading slash and no trailing slash.
func sanitizeBase(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return path.Clean("/" + bp)
}

// moduleName is the :name path segment. Module names come from the config
// file and may contain spaces, so only surrounding blanks are dropped.
func moduleName(c *gin.Context) string {
	return strings.TrimSpace(c.Param("name"))
}

// writeJSON encodes v as the response body. Module state changes with every
// hotkey, so responses are never cacheable.
func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Header("Cache-Control", "no-store")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

// writeError maps a dispatch error onto its HTTP status.
func writeError(c *gin.Context, err error) {
	writeJSON(c, statusOf(err), errorResp{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrUnknownModule):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrModuleDisabled):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrUnknownAction):
		return http.StatusBadRequest
	default:
		// launch failures and stop errors
		return http.StatusInternalServerError
	}
}
