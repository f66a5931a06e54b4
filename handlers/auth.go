package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"plaza/identity"
	"plaza/middleware"
)

type LoginRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// Login verifies the client's identity-provider token, feeds the
// identity-change stream (which triggers the reconciliation pass), and issues
// an API token.
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ident, err := verifier.Verify(ctx, req.IDToken)
	if err != nil {
		logrus.WithError(err).Warn("login token verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	announcer.Announce(identity.Event{UID: ident.UID, Identity: ident})

	expirationTime := time.Now().Add(24 * time.Hour)
	claims := &middleware.Claims{
		UserID: ident.UID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   tokenString,
		"userId":  ident.UID,
		"message": "Login successful",
	})
}

// Logout announces sign-out; the coordinator tears down the session state and
// the canonical session entry.
func Logout(c *gin.Context) {
	userID := c.GetString("userId")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	announcer.Announce(identity.Event{UID: userID, Identity: nil})

	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}
