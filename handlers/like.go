package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ToggleLike flips the caller's like on a post. The response reflects the
// optimistic local state; on failure the override is already rolled back and
// the error names the failure so the UI is never left ambiguous.
func ToggleLike(c *gin.Context) {
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

	liked, err := likeEngine.Toggle(ctx, post, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"liked": liked,
		"likes": post.Likes,
	})
}
