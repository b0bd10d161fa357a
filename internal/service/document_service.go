package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	apperrors "github.com/GolferGeek/sync-focus/internal/errors"
	"github.com/GolferGeek/sync-focus/internal/fanout"
	"github.com/GolferGeek/sync-focus/internal/repository"
)

// DocumentService stores schemaless JSON documents with revisions and
// announces every change on the bus. It knows nothing about what the
// documents mean.
type DocumentService struct {
	repo   *repository.DocumentRepository
	bus    fanout.Bus
	clock  clockwork.Clock
	logger zerolog.Logger
}

// WriteInput is one PUT or PATCH request.
type WriteInput struct {
	Data       json.RawMessage
	Merge      bool
	IfRevision *int64
	MustExist  bool
}

func NewDocumentService(
	repo *repository.DocumentRepository,
	bus fanout.Bus,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *DocumentService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DocumentService{
		repo:   repo,
		bus:    bus,
		clock:  clock,
		logger: logger.With().Str("component", "documents").Logger(),
	}
}

func (s *DocumentService) Get(ctx context.Context, collection, id string) (*docstore.Document, *apperrors.APIError) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return nil, apperrors.InvalidPath(err)
	}
	doc, err := s.repo.Get(ctx, collection, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound(apperrors.CodeNotFound, "document not found")
	}
	if err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Str("id", id).Msg("failed to get document")
		return nil, apperrors.Internal("failed to get document")
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, *apperrors.APIError) {
	if err := docstore.ValidatePath(collection, ""); err != nil {
		return nil, apperrors.InvalidPath(err)
	}
	if q.OrderBy != "" {
		if err := docstore.ValidatePath(q.OrderBy, ""); err != nil {
			return nil, apperrors.BadRequest("invalid_order", "orderBy must be a top-level field name")
		}
	}
	docs, err := s.repo.List(ctx, collection)
	if err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Msg("failed to list documents")
		return nil, apperrors.Internal("failed to list documents")
	}
	docstore.SortDocuments(docs, q)
	return docs, nil
}

// Snapshot reads the full current value of a watched path.
func (s *DocumentService) Snapshot(ctx context.Context, collection, id string, q docstore.Query) (docstore.Snapshot, *apperrors.APIError) {
	if id == "" {
		docs, apiErr := s.List(ctx, collection, q)
		if apiErr != nil {
			return docstore.Snapshot{}, apiErr
		}
		return docstore.Snapshot{Path: collection, Exists: true, Documents: docs}, nil
	}

	snap := docstore.Snapshot{Path: collection + "/" + id}
	doc, apiErr := s.Get(ctx, collection, id)
	if apiErr != nil {
		if apiErr.Status == http.StatusNotFound {
			return snap, nil
		}
		return docstore.Snapshot{}, apiErr
	}
	snap.Exists = true
	snap.Document = doc
	return snap, nil
}

// Create stores data under a generated id.
func (s *DocumentService) Create(ctx context.Context, collection string, data json.RawMessage) (*docstore.Document, *apperrors.APIError) {
	zero := int64(0)
	return s.Write(ctx, collection, uuid.NewString(), WriteInput{Data: data, IfRevision: &zero})
}

// Write replaces or merges a document. With IfRevision set the write only
// lands while the stored revision still matches; 0 means the document must
// not exist yet.
func (s *DocumentService) Write(ctx context.Context, collection, id string, in WriteInput) (*docstore.Document, *apperrors.APIError) {
	if err := docstore.ValidatePath(collection, id); err != nil || id == "" {
		if err == nil {
			err = docstore.ErrInvalid
		}
		return nil, apperrors.InvalidPath(err)
	}
	data, err := docstore.EncodeObject(in.Data)
	if err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidJSON, "data must be a JSON object")
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to start transaction")
	}
	defer tx.Rollback()

	current, err := s.repo.GetTx(ctx, tx, collection, id)
	exists := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error().Err(err).Str("collection", collection).Str("id", id).Msg("failed to read document")
		return nil, apperrors.Internal("failed to read document")
	}
	if in.MustExist && !exists {
		return nil, apperrors.NotFound(apperrors.CodeNotFound, "document not found")
	}

	var currentRevision int64
	if exists {
		currentRevision = current.Revision
	}
	if in.IfRevision != nil && *in.IfRevision != currentRevision {
		return nil, revisionConflict(current, currentRevision)
	}

	if in.Merge && exists {
		data, err = docstore.MergeJSON(current.Data, data)
		if err != nil {
			return nil, apperrors.Internal("failed to merge document")
		}
	}

	doc := docstore.Document{
		Collection: collection,
		ID:         id,
		Revision:   currentRevision + 1,
		Data:       data,
		UpdatedAt:  s.clock.Now().UTC(),
	}
	if exists {
		err = s.repo.UpdateTx(ctx, tx, &doc, currentRevision)
	} else {
		err = s.repo.InsertTx(ctx, tx, &doc)
	}
	if errors.Is(err, repository.ErrRevisionMismatch) {
		return nil, revisionConflict(current, currentRevision)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Str("id", id).Msg("failed to write document")
		return nil, apperrors.Internal("failed to write document")
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return nil, apperrors.Internal("failed to commit transaction")
	}

	s.publish(ctx, fanout.Change{Collection: collection, ID: id, Revision: doc.Revision})
	return &doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, collection, id string) *apperrors.APIError {
	if err := docstore.ValidatePath(collection, id); err != nil || id == "" {
		if err == nil {
			err = docstore.ErrInvalid
		}
		return apperrors.InvalidPath(err)
	}
	removed, err := s.repo.Delete(ctx, collection, id)
	if err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Str("id", id).Msg("failed to delete document")
		return apperrors.Internal("failed to delete document")
	}
	if removed {
		s.publish(ctx, fanout.Change{Collection: collection, ID: id, Deleted: true})
	}
	return nil
}

func (s *DocumentService) publish(ctx context.Context, change fanout.Change) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, change); err != nil {
		s.logger.Warn().Err(err).
			Str("collection", change.Collection).
			Str("id", change.ID).
			Msg("failed to publish change")
	}
}

func revisionConflict(current *docstore.Document, revision int64) *apperrors.APIError {
	return apperrors.Conflict(
		apperrors.CodeRevisionConflict,
		"document was modified by another client",
		map[string]interface{}{"revision": revision, "document": current},
	)
}
