package api

import (
	"net/http"
	"path/filepath"

	"github.com/Domenick1991/airreservations/config"
	"github.com/Domenick1991/airreservations/internal/metrics"
	"github.com/Domenick1991/airreservations/internal/service/booking"
	"github.com/Domenick1991/airreservations/internal/service/cart"
	"github.com/Domenick1991/airreservations/internal/service/flights"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Services struct {
	Flights  flights.FlightUseCase
	Bookings booking.BookingUseCase
	Carts    cart.CartUseCase
}

func NewRouter(cfg config.HTTPConfig, services Services, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
		}))
	}
	r.Use(RequestID())
	r.Use(Logger(log))
	r.Use(metrics.GinMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.SwaggerDir != "" {
		r.StaticFile("/openapi.json", filepath.Join(cfg.SwaggerDir, "openapi.json"))
		r.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/openapi.json"))))
	}

	v1 := r.Group("/api/v1")
	NewFlightHandler(services.Flights, services.Bookings, log).Register(v1.Group("/flights"))
	NewReservationHandler(services.Bookings, log).Register(v1.Group("/reservations"))
	NewPaymentHandler(services.Bookings, log).Register(v1.Group("/payments"))
	NewCartHandler(services.Carts, log).Register(v1.Group("/carts"))

	return r
}
