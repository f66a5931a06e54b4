package routes

import (
	"time"

	"plaza/handlers"
	"plaza/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Plaza API is running",
			"time":    time.Now().Unix(),
		})
	})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:8080", "http://127.0.0.1:8080", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Public routes (no auth required)
	loginLimiter := middleware.NewIPRateLimiter(10, time.Minute)
	router.POST("/api/login", loginLimiter.Middleware(), handlers.Login)

	// Protected routes group
	protected := router.Group("/api")
	protected.Use(middleware.JWTAuthMiddleware())

	// Profile
	protected.GET("/me", handlers.GetMyProfile)
	protected.PUT("/me", handlers.UpdateMyProfile)
	protected.POST("/me/photo", handlers.UploadProfilePhoto)
	protected.DELETE("/me/photo", handlers.DeleteProfilePhoto)
	protected.GET("/user/:id", handlers.GetUser)
	protected.POST("/logout", handlers.Logout)

	// Posts
	protected.POST("/post", handlers.CreatePost)
	protected.POST("/post/image", handlers.UploadPostImage)
	protected.PUT("/post/:id", handlers.UpdatePost)
	protected.DELETE("/post/:id", handlers.DeletePost)
	protected.GET("/feed", handlers.GetFeed)
	protected.GET("/user/:id/posts", handlers.GetUserPosts)
	protected.GET("/my/posts", handlers.GetMyPosts)

	// Likes
	protected.POST("/post/:id/like", handlers.ToggleLike)

	return router
}
