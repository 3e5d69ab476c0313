package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"marginalia-reader/marginalia/broker"
	"marginalia-reader/marginalia/config"
	"marginalia-reader/marginalia/database"
	"marginalia-reader/marginalia/middleware"
	"marginalia-reader/marginalia/routes"
	"marginalia-reader/marginalia/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	db, err := database.Setup(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// The broker is optional: a missing NATS server disables external event
	// mirroring but nothing else.
	if err := broker.InitProducer(cfg); err != nil {
		log.Printf("Warning: Failed to initialize NATS producer: %v", err)
		log.Println("The application will continue; events stay queued until a broker is reachable")
	} else {
		defer broker.CloseProducer()
	}

	services.BookServiceInstance = services.NewBookService()
	services.AnnotationServiceInstance = services.NewAnnotationService()
	services.CardServiceInstance = services.NewCardService()
	services.ConnectionServiceInstance = services.NewConnectionService()
	services.CanvasServiceInstance = services.NewCanvasService(cfg,
		services.CardServiceInstance, services.ConnectionServiceInstance)

	webSocketService := services.NewWebSocketService(db, services.CanvasServiceInstance)
	services.WebSocketServiceInstance = webSocketService
	webSocketService.Start()
	defer webSocketService.Stop()

	eventDispatcher := services.NewEventDispatcher(db)
	eventDispatcher.SetBroadcastFunc(webSocketService.BroadcastMessage)
	services.EventDispatcherInstance = eventDispatcher
	eventDispatcher.Start()
	defer eventDispatcher.Stop()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	api := router.Group("/api/v1")
	routes.RegisterBookRoutes(api, db, services.BookServiceInstance)
	routes.RegisterAnnotationRoutes(api, db, services.AnnotationServiceInstance)
	routes.RegisterCardRoutes(api, db, services.CardServiceInstance)
	routes.RegisterConnectionRoutes(api, db, services.ConnectionServiceInstance)
	routes.RegisterWebSocketRoutes(api, webSocketService)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("Shutting down server...")
		// Stop accepting gestures and flush pending canvas writes before
		// the process exits.
		webSocketService.Stop()
		eventDispatcher.Stop()
		broker.CloseProducer()
		db.Close()
		os.Exit(0)
	}()

	log.Printf("API server is running on port %s", cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
