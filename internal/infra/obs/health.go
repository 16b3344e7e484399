package obs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers serves liveness and readiness. Ready checks run in order
// and the first failure is reported.
type HealthHandlers struct {
	Ready []func() error
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	for _, check := range h.Ready {
		if check == nil {
			continue
		}
		if err := check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
