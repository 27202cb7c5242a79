package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zentity-id/go-zentity-server/global"
)

type HealthCheckAPI struct {
}

func NewHealthCheckAPI() *HealthCheckAPI {
	return &HealthCheckAPI{}
}

func (ha *HealthCheckAPI) HealthCheck(c *gin.Context) {
	version := global.Conf.Version
	mode := global.Conf.Mode
	rpID := global.Conf.Passkey.RelyingPartyID
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version, "mode": mode, "rpId": rpID})
}
