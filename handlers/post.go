package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"plaza/models"
)

type CreatePostRequest struct {
	Description string           `json:"description" binding:"required"`
	ImageURL    string           `json:"imageUrl"`
	Location    *models.Location `json:"location"`
}

type UpdatePostRequest struct {
	Description string           `json:"description" binding:"required"`
	ImageURL    string           `json:"imageUrl"`
	Location    *models.Location `json:"location"`
}

// CreatePost writes a new post with the author's current identity snapshot
// denormalized into it.
func CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user := session.User(userID)
	if user == nil {
		// No published view yet; fall back to the reconciled one.
		var err error
		user, err = identityEngine.RefreshIdentity(ctx, userID)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	post := models.Post{
		ID:             uuid.NewString(),
		AuthorID:       userID,
		AuthorName:     user.Name(),
		AuthorPhotoURL: user.PhotoURL,
		Description:    req.Description,
		ImageURL:       req.ImageURL,
		Location:       req.Location,
		CreatedAt:      time.Now(),
		LikedBy:        []string{},
	}

	if err := posts.Create(ctx, &post); err != nil {
		logrus.WithError(err).Error("post creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"postId":  post.ID,
	})
}

// UploadPostImage stores a post image and returns its URL for a subsequent
// CreatePost.
func UploadPostImage(c *gin.Context) {
	userID := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	imageFile, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}
	defer imageFile.Close()

	url, err := uploadImage(ctx, imageFile, "plaza/posts", userID+"_"+uuid.NewString())
	if err != nil {
		logrus.WithError(err).Error("post image upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload image"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func UpdatePost(c *gin.Context) {
	userID := c.GetString("userId")
	postID := c.Param("id")

	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	post, err := posts.Get(ctx, postID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if post.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your post"})
		return
	}

	set := map[string]interface{}{
		"description": req.Description,
		"imageUrl":    req.ImageURL,
		"location":    req.Location,
		"updatedAt":   time.Now(),
	}
	if err := posts.Update(ctx, postID, set); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post updated successfully"})
}

func DeletePost(c *gin.Context) {
	userID := c.GetString("userId")
	postID := c.Param("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	post, err := posts.Get(ctx, postID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	if post == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if post.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not your post"})
		return
	}

	if err := posts.Delete(ctx, postID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

// GetFeed lists all posts newest first. With ?silent=1 the response carries
// no-store cache headers and skips nothing else: background revalidation gets
// the same data without driving any loading state.
func GetFeed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := feed.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("silent") == "1" {
		c.Header("Cache-Control", "no-store")
	}
	c.JSON(http.StatusOK, decorateLiked(c.GetString("userId"), list))
}

func GetUserPosts(c *gin.Context) {
	authorID := c.Param("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := feed.ListByAuthor(ctx, authorID)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("silent") == "1" {
		c.Header("Cache-Control", "no-store")
	}
	c.JSON(http.StatusOK, decorateLiked(c.GetString("userId"), list))
}

func GetMyPosts(c *gin.Context) {
	userID := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := feed.ListByAuthor(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, decorateLiked(userID, list))
}

type feedItem struct {
	models.Post
	Liked bool `json:"liked"`
}

// decorateLiked annotates each post with the caller's effective like state,
// session override included.
func decorateLiked(userID string, list []models.Post) []feedItem {
	items := make([]feedItem, len(list))
	for i, p := range list {
		items[i] = feedItem{Post: p, Liked: likeEngine.Liked(userID, &list[i])}
	}
	return items
}
