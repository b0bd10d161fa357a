package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GolferGeek/sync-focus/internal/docstore"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT collection, id, data, revision, updated_at
		 FROM documents WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	return scanDocument(row)
}

func (r *DocumentRepository) GetTx(ctx context.Context, tx *sql.Tx, collection, id string) (*docstore.Document, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT collection, id, data, revision, updated_at
		 FROM documents WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	return scanDocument(row)
}

func (r *DocumentRepository) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT collection, id, data, revision, updated_at
		 FROM documents
		 WHERE collection = ?
		 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) InsertTx(ctx context.Context, tx *sql.Tx, doc *docstore.Document) error {
	ts := formatTime(doc.UpdatedAt)
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO documents (collection, id, data, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.Collection,
		doc.ID,
		string(doc.Data),
		doc.Revision,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpdateTx replaces the document only if it is still at expectedRevision.
func (r *DocumentRepository) UpdateTx(ctx context.Context, tx *sql.Tx, doc *docstore.Document, expectedRevision int64) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE documents
		 SET data = ?,
		     revision = ?,
		     updated_at = ?
		 WHERE collection = ? AND id = ? AND revision = ?`,
		string(doc.Data),
		doc.Revision,
		formatTime(doc.UpdatedAt),
		doc.Collection,
		doc.ID,
		expectedRevision,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows: %w", err)
	}
	if affected == 0 {
		return ErrRevisionMismatch
	}
	return nil
}

// Delete reports whether a document was removed.
func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document rows: %w", err)
	}
	return affected > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*docstore.Document, error) {
	var doc docstore.Document
	var data string
	var updatedAt string
	err := s.Scan(&doc.Collection, &doc.ID, &data, &doc.Revision, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	parsed, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse document updated_at: %w", err)
	}
	doc.Data = []byte(data)
	doc.UpdatedAt = parsed
	return &doc, nil
}
