package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	apperrors "github.com/GolferGeek/sync-focus/internal/errors"
)

// writeError aborts the request with the service's error envelope. The error
// is also attached to the gin context so the request logger can report it.
func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("")
	}
	_ = c.Error(apiErr)
	c.AbortWithStatusJSON(apiErr.Status, apiErr.Envelope())
}

func writeInvalidJSON(c *gin.Context) {
	writeError(c, apperrors.BadRequest(apperrors.CodeInvalidJSON, "invalid request body"))
}

func writeDocument(c *gin.Context, status int, doc *docstore.Document) {
	c.JSON(status, gin.H{"document": doc})
}

func writeDocuments(c *gin.Context, docs []docstore.Document) {
	if docs == nil {
		docs = []docstore.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}
