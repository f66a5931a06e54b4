package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"plaza/engine"
	"plaza/models"
)

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	PhoneNumber *string `json:"phoneNumber"`
	Email       *string `json:"email"`
	// IDToken re-proves a recent sign-in; required for email changes.
	IDToken string `json:"idToken"`
}

// GetMyProfile runs the full reconciliation pass and returns the published
// user view, so entering the profile view always renders corrected data.
func GetMyProfile(c *gin.Context) {
	userID := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := identityEngine.RefreshIdentity(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("uid", userID).Error("identity refresh failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"displayName": user.Name(),
		"photoUrl":    orNil(user.PhotoURL),
		"phoneNumber": orNil(user.PhoneNumber),
		"email":       user.Email,
	})
}

// GetUser returns another user's profile document without touching their
// identity record.
func GetUser(c *gin.Context) {
	uid := c.Param("id")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := identityEngine.Profile(ctx, uid)
	if err != nil {
		respondError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          user.ID,
		"displayName": user.Name(),
		"photoUrl":    orNil(user.PhotoURL),
	})
}

func UpdateMyProfile(c *gin.Context) {
	userID := c.GetString("userId")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reauthed := false
	if req.IDToken != "" {
		if ident, err := verifier.Verify(ctx, req.IDToken); err == nil && ident.UID == userID {
			reauthed = true
		}
	}

	err := identityEngine.UpdateProfile(ctx, userID, engine.ProfileUpdate{
		DisplayName:     req.DisplayName,
		PhoneNumber:     req.PhoneNumber,
		Email:           req.Email,
		Reauthenticated: reauthed,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}

// UploadProfilePhoto stores the image and runs the authoritative photo
// mutation, cache-busting included.
func UploadProfilePhoto(c *gin.Context) {
	userID := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form data"})
		return
	}

	photoFile, _, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo file provided"})
		return
	}
	defer photoFile.Close()

	url, err := uploadImage(ctx, photoFile, "plaza/avatars", userID)
	if err != nil {
		logrus.WithError(err).Error("profile photo upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload photo"})
		return
	}

	if err := identityEngine.SetPhotoURL(ctx, userID, url); err != nil {
		respondError(c, err)
		return
	}

	user := session.User(userID)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Profile photo updated",
		"photoUrl": photoOf(user),
	})
}

// DeleteProfilePhoto removes the photo everywhere; absence is the stable
// terminal state.
func DeleteProfilePhoto(c *gin.Context) {
	userID := c.GetString("userId")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := identityEngine.SetPhotoURL(ctx, userID, ""); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile photo removed"})
}

func orNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func photoOf(u *models.User) interface{} {
	if u == nil {
		return nil
	}
	return orNil(u.PhotoURL)
}
