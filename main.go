package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plaza/cache"
	"plaza/database"
	"plaza/engine"
	"plaza/handlers"
	"plaza/identity"
	"plaza/routes"
	"plaza/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	godotenv.Load()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("Starting Plaza backend...")

	if os.Getenv("JWT_SECRET") == "" || os.Getenv("MONGODB_URI") == "" {
		log.Fatal("JWT_SECRET and MONGODB_URI must be set")
	}

	// ===== MONGODB WITH RETRY =====
	var dbErr error
	for i := 1; i <= 3; i++ {
		if dbErr = database.ConnectMongo(); dbErr != nil {
			log.Warnf("MongoDB connection attempt %d failed: %v", i, dbErr)
			time.Sleep(2 * time.Second)
			continue
		}
		break
	}
	if dbErr != nil {
		log.Fatal("Failed to connect to MongoDB: ", dbErr)
	}
	defer database.DisconnectMongo()

	// ===== REDIS =====
	if err := database.ConnectRedis(); err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer database.DisconnectRedis()

	// ===== FIREBASE =====
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := identity.NewFirebase(ctx, os.Getenv("FIREBASE_PROJECT_ID"), os.Getenv("FIREBASE_CREDENTIALS"))
	if err != nil {
		log.Fatal("Failed to init Firebase: ", err)
	}

	// ===== WIRING =====
	kv := store.NewRedisKV(database.Redis, "plaza:")
	overrides := store.NewOverrideStore(kv)

	scratchDir := os.Getenv("SCRATCH_DIR")
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	imageCache := cache.New(kv, scratchDir)

	session := engine.NewSession()
	profiles := database.NewProfileRepo(database.Users)
	posts := database.NewPostRepo(database.Posts)

	identitySync := engine.NewIdentitySync(provider, profiles, posts, overrides, imageCache, session, kv)
	likeEngine := engine.NewLikeEngine(posts, session)
	feed := engine.NewFeed(posts)

	go identitySync.Run(ctx)

	handlers.Configure(identitySync, likeEngine, feed, session, posts, provider, provider)

	// ===== GIN MODE =====
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.SetupRouter()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server running on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error: ", err)
		}
	}()

	// ===== GRACEFUL SHUTDOWN =====
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancel()
	identitySync.WaitVerifications()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	log.Info("Server exited")
}
