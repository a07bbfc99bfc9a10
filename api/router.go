package api

import (
	"github.com/gin-gonic/gin"

	"listing-api/utils"
)

type RouterConfig struct {
	ListingHandler *ListingHandler
	Logger         *utils.Logger
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORS(cfg.AllowedOrigins))
	}

	h := cfg.ListingHandler
	r.GET("/healthcheck", h.HealthCheck)

	listings := r.Group("/listings")
	{
		listings.POST("", h.Create)
		listings.GET("", h.List)
		listings.PUT("/:id", h.Update)
		listings.GET("/:id/prices", h.PriceHistory)
	}

	return r
}
