package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dm-go/internal/config"
	"dm-go/internal/handlers/apiserver"
	"dm-go/internal/middleware"
	appRedis "dm-go/internal/redis"
	"dm-go/internal/services"
	"dm-go/internal/storage"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("API server configuration loaded.")

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("API server database connection established.")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("Failed to migrate database tables: %v", err)
	}

	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err)
	}
	cancelPing()
	defer redisClient.Close()
	tokenBlacklist := appRedis.NewRedisTokenBlacklist(redisClient)

	userRepo := storage.NewGormUserRepository(db)
	contactRepo := storage.NewGormContactRepository(db)
	msgRepo := storage.NewGormMessageRepository(db)

	storageService, err := storage.NewLocalStorageService(cfg.Storage, "/uploads")
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}

	authService := services.NewAuthService(userRepo, cfg)
	userService := services.NewUserService(userRepo)
	contactService := services.NewContactService(userRepo, contactRepo, msgRepo)
	historyService := services.NewHistoryService(msgRepo, cfg.Relay)

	uploadHandler := apiserver.NewUploadHandler(storageService, cfg.Storage)
	authHandler := apiserver.NewAuthHandler(authService, userService, tokenBlacklist)
	contactHandler := apiserver.NewContactHandler(contactService)
	messageHandler := apiserver.NewMessageHandler(historyService)

	router := mux.NewRouter()

	// Public auth endpoints.
	authRouter := router.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/signup", authHandler.Signup).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	// Everything else requires a valid token.
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecretKey, tokenBlacklist))

	apiRouter.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/user-info", authHandler.UserInfo).Methods(http.MethodGet)
	apiRouter.HandleFunc("/auth/update-profile", authHandler.UpdateProfile).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/add-profile-image", authHandler.AddProfileImage(uploadHandler)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/remove-profile-image", authHandler.RemoveProfileImage).Methods(http.MethodDelete)

	apiRouter.HandleFunc("/contacts/search", contactHandler.Search).Methods(http.MethodPost)
	apiRouter.HandleFunc("/contacts/add", contactHandler.Add).Methods(http.MethodPost)
	apiRouter.HandleFunc("/contacts/get-contacts-for-dm", contactHandler.DMList).Methods(http.MethodGet)

	apiRouter.HandleFunc("/messages/get-messages", messageHandler.GetMessages).Methods(http.MethodPost)
	apiRouter.HandleFunc("/messages/upload-file", uploadHandler.UploadFile).Methods(http.MethodPost)

	// Serve uploaded files.
	router.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Storage.LocalPath))))

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.AllowCredentials(),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	)(router)

	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("API server listening on %s", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API server shutdown failed: %v", err)
	}
	log.Println("API server stopped.")
}
