package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/service"
)

type DocumentHandler struct {
	documentService *service.DocumentService
}

type putDocumentRequest struct {
	Data       json.RawMessage `json:"data"`
	Merge      bool            `json:"merge"`
	IfRevision *int64          `json:"ifRevision"`
}

type patchDocumentRequest struct {
	Data       json.RawMessage `json:"data"`
	IfRevision *int64          `json:"ifRevision"`
}

type createDocumentRequest struct {
	Data json.RawMessage `json:"data"`
}

func NewDocumentHandler(documentService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, apiErr := h.documentService.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeDocument(c, http.StatusOK, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, apiErr := h.documentService.List(c.Request.Context(), c.Param("collection"), queryFromRequest(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeDocuments(c, docs)
}

func (h *DocumentHandler) Put(c *gin.Context) {
	var req putDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	doc, apiErr := h.documentService.Write(c.Request.Context(), c.Param("collection"), c.Param("id"), service.WriteInput{
		Data:       req.Data,
		Merge:      req.Merge,
		IfRevision: req.IfRevision,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeDocument(c, http.StatusOK, doc)
}

func (h *DocumentHandler) Patch(c *gin.Context) {
	var req patchDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	doc, apiErr := h.documentService.Write(c.Request.Context(), c.Param("collection"), c.Param("id"), service.WriteInput{
		Data:       req.Data,
		Merge:      true,
		IfRevision: req.IfRevision,
		MustExist:  true,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeDocument(c, http.StatusOK, doc)
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	doc, apiErr := h.documentService.Create(c.Request.Context(), c.Param("collection"), req.Data)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeDocument(c, http.StatusCreated, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if apiErr := h.documentService.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryFromRequest(c *gin.Context) docstore.Query {
	desc, _ := strconv.ParseBool(c.Query("desc"))
	return docstore.Query{OrderBy: c.Query("orderBy"), Descending: desc}
}
