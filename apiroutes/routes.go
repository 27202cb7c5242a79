package apiroutes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zentity-id/go-zentity-server/api"
	restinterceptors "github.com/zentity-id/go-zentity-server/api/interceptors"
	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/metrics"
	"github.com/zentity-id/go-zentity-server/passkey"
	"github.com/zentity-id/go-zentity-server/repository"
	"github.com/zentity-id/go-zentity-server/services"
	"github.com/zentity-id/go-zentity-server/types"
)

// REST API routes
func ConfigRoutes(router *gin.Engine, dbSelector *repository.CouchDBSelector, challengeStore *passkey.ChallengeStore, env *types.Environment) *gin.Engine {
	// init metrics
	if global.Conf.Prometheus.Enabled {

		metrics.InitMetrics()

		authorized := router.Group("/metrics", gin.BasicAuth(gin.Accounts{
			global.Conf.Prometheus.Username: global.Conf.Prometheus.Password,
		}))

		authorized.GET("", gin.WrapH(promhttp.Handler()))
	}

	// SERVICE definitions
	userService := services.NewUserService(dbSelector)
	credentialService := services.NewCredentialService(dbSelector)
	secretService := services.NewSecretService(dbSelector)
	recoveryService := services.NewRecoveryService(dbSelector, userService, credentialService, env)
	keyRegService := services.NewKeyRegService()

	verifier := passkey.NewVerifier(challengeStore, credentialService, global.Conf.Passkey.RelyingPartyID, global.Conf.Passkey.Origin)

	// API definitions
	healthCheckApi := api.NewHealthCheckAPI()
	passkeyApi := api.NewPasskeyAPI(challengeStore, verifier, credentialService, secretService, env)
	vaultApi := api.NewVaultAPI(secretService, env)
	recoveryApi := api.NewRecoveryAPI(recoveryService, env)
	keysApi := api.NewKeysAPI(keyRegService)

	// PUBLIC API
	publicApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.RateLimitMiddleware())
	{
		publicApi.GET("/v1/healthcheck", healthCheckApi.HealthCheck)

		publicApi.GET("/v1/passkey/challenge", passkeyApi.Challenge)
		publicApi.POST("/v1/passkey/verify", passkeyApi.VerifyAssertion)
		publicApi.POST("/v1/passkey/register", passkeyApi.RegisterCredential)
		publicApi.DELETE("/v1/passkey/credentials/:id", passkeyApi.RevokeCredential)

		publicApi.POST("/v1/vault/secrets", vaultApi.StoreSecret)
		publicApi.GET("/v1/vault/secrets/:id", vaultApi.GetSecret)
		publicApi.GET("/v1/vault/secrets/:id/wrappers", vaultApi.ListWrappers)
		publicApi.POST("/v1/vault/secrets/:id/wrappers", vaultApi.AddWrapper)
		publicApi.DELETE("/v1/vault/secrets/:id/wrappers/:credentialId", vaultApi.RevokeWrapper)

		publicApi.POST("/v1/keys/register", keysApi.RegisterServerKey)

		publicApi.POST("/v1/recovery/start", recoveryApi.Start)
		publicApi.POST("/v1/recovery/approve", recoveryApi.Approve)
		publicApi.POST("/v1/recovery/finalize", recoveryApi.Finalize)
		publicApi.GET("/v1/recovery/:id", recoveryApi.Status)
	}

	return router
}
