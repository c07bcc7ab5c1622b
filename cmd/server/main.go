package main

import (
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/elicharlese/ThePublic-sub000/internal/api"
	"github.com/elicharlese/ThePublic-sub000/internal/app"
	"github.com/elicharlese/ThePublic-sub000/internal/config"
	"github.com/elicharlese/ThePublic-sub000/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	a, err := app.New(cfg)
	if err != nil {
		logrus.Fatal("Failed to initialize application: ", err)
	}
	defer a.Close()

	a.Start()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging())
	r.Use(middleware.CORS())

	handler := api.NewHandler(cfg, a.Store, a.Cache, a.Registry, a.Engine, a.Aggregator, a.Ledger)
	api.SetupRoutes(r, handler)

	logrus.Infof("Starting server on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatal("Failed to start server: ", err)
	}
}
