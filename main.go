package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-api/cache"
	"shop-api/database"
	"shop-api/handlers"
	"shop-api/kafka"
	"shop-api/mailer"
	"shop-api/middleware"
	"shop-api/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := cache.InitRedis(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("shop-api")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	// Initialize Kafka
	producer, err := kafka.InitProducer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	mail := mailer.NewSMTPMailer(logger)

	// Notification consumer runs in-process
	consumer, err := kafka.InitConsumer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()
	go func() {
		if err := kafka.StartNotificationConsumer(consumer, mail, logger); err != nil {
			logger.Error("Notification consumer stopped", zap.Error(err))
		}
	}()

	gateway := payment.NewRazorpayClient(logger)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	authHandler := handlers.NewAuthHandler(db, mail, logger)
	productHandler := handlers.NewProductHandler(db, redisClient, logger)
	cartHandler := handlers.NewCartHandler(db, logger)
	orderHandler := handlers.NewOrderHandler(db, producer, gateway, logger)

	// Auth endpoints
	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/forgot-password", authHandler.ForgotPassword)
	router.POST("/auth/reset-password", authHandler.ResetPassword)

	// Catalog read endpoints
	router.GET("/products", productHandler.GetProducts)
	router.GET("/products/:id", productHandler.GetProduct)

	// Authenticated endpoints
	protected := router.Group("/")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.GET("/profile", authHandler.GetProfile)

		protected.GET("/cart", cartHandler.GetCart)
		protected.POST("/cart/:productId", cartHandler.AddToCart)
		protected.PUT("/cart/:productId", cartHandler.UpdateCart)
		protected.DELETE("/cart/:productId", cartHandler.RemoveFromCart)

		protected.POST("/orders/create", orderHandler.CreateOrder)
		protected.GET("/orders/myOrder", orderHandler.GetMyOrders)
		protected.GET("/orders/:orderId", orderHandler.GetOrder)
		protected.PUT("/orders/:orderId/cancel", orderHandler.CancelOrder)
		protected.POST("/orders/razorpay/create", orderHandler.CreateRazorpayOrder)
		protected.POST("/orders/razorpay/verify", orderHandler.VerifyRazorpayPayment)
	}

	// Admin endpoints
	admin := router.Group("/")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.POST("/products", productHandler.CreateProduct)
		admin.PUT("/products/:id", productHandler.UpdateProduct)
		admin.DELETE("/products/:id", productHandler.DeleteProduct)

		admin.PUT("/orders/:orderId/status", orderHandler.UpdateOrderStatus)
		admin.GET("/orders/all", orderHandler.GetAllOrders)
	}

	// Start server
	srv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Shop API started on :8080")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
