package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gin-gonic/gin"

	"plaza/engine"
	"plaza/identity"
)

// Package-level collaborators, wired once from main via Configure.
var (
	identityEngine *engine.IdentitySync
	likeEngine     *engine.LikeEngine
	feed           *engine.Feed
	session        *engine.Session
	posts          engine.PostStore
	verifier       identity.Verifier
	announcer      identity.Announcer
)

func Configure(ie *engine.IdentitySync, le *engine.LikeEngine, f *engine.Feed,
	s *engine.Session, ps engine.PostStore, v identity.Verifier, a identity.Announcer) {
	identityEngine = ie
	likeEngine = le
	feed = f
	session = s
	posts = ps
	verifier = v
	announcer = a
}

// uploadImage pushes an image to the binary object store and returns its URL.
func uploadImage(ctx context.Context, file multipart.File, folder, publicID string) (string, error) {
	cld, err := cloudinary.NewFromURL(os.Getenv("CLOUDINARY_URL"))
	if err != nil {
		return "", err
	}

	result, err := cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         folder,
		PublicID:       publicID,
		Transformation: "c_limit,w_800,h_800,q_auto",
	})
	if err != nil {
		return "", err
	}
	return result.SecureURL, nil
}

// respondError maps the engine error taxonomy onto HTTP responses with a
// human-readable message.
func respondError(c *gin.Context, err error) {
	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
		return
	}

	var pErr *engine.PermissionError
	if errors.As(err, &pErr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":          pErr.Error(),
			"requiresReauth": pErr.RequiresReauth,
		})
		return
	}

	var propErr *engine.PartialPropagationError
	if errors.As(err, &propErr) {
		// Authoritative data is already correct; only denormalized copies
		// lag, so the caller can retry just the propagation.
		c.JSON(http.StatusAccepted, gin.H{
			"error":        propErr.Error(),
			"partial":      true,
			"failedChunks": propErr.FailedChunks,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
