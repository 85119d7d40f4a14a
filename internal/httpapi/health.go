package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness and whether the commission relay is fully configured.
func (h *CommissionHandlers) Health(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{"status": "ok", "configured": h.Configured()})
}
