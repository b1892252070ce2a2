package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/schoolpost/internal/model"
)

var documentColumns = []string{
	"id", "type", "class_group_id", "week_start_date", "filename", "source_url",
	"blob_key", "blob_url", "mime_type", "file_size", "content", "extracted_text",
	"timetable", "is_active", "version", "created_at", "updated_at",
}

// documentWhere translates a filter into SQL conditions.
func documentWhere(f model.DocumentFilter, withActive bool) sq.And {
	conds := sq.And{}
	if f.Type != "" {
		conds = append(conds, sq.Eq{"type": string(f.Type)})
	}
	if f.SchoolWide {
		conds = append(conds, sq.Eq{"class_group_id": nil})
	}
	if f.ClassGroupID != "" {
		conds = append(conds, sq.Eq{"class_group_id": f.ClassGroupID})
	}
	if f.WeekStart != nil {
		conds = append(conds, sq.Eq{"week_start_date": *f.WeekStart})
	}
	if f.Filename != "" {
		conds = append(conds, sq.Eq{"filename": f.Filename})
	}
	if withActive && f.ActiveOnly {
		conds = append(conds, sq.Eq{"is_active": true})
	}
	return conds
}

// SaveDocumentVersion deactivates active rows sharing identity and inserts
// doc with the next version number, in one transaction.
func (r *Repository) SaveDocumentVersion(ctx context.Context, doc *model.Document, identity model.DocumentFilter) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		now := r.now()
		where := documentWhere(identity, false)

		query, args, err := psql.Select("COALESCE(MAX(version), 0)").From("documents").Where(where).ToSql()
		if err != nil {
			return fmt.Errorf("build version query: %w", err)
		}
		var latest int
		if err := tx.QueryRow(ctx, query, args...).Scan(&latest); err != nil {
			return fmt.Errorf("select latest version: %w", err)
		}

		query, args, err = psql.Update("documents").
			Set("is_active", false).
			Set("updated_at", now).
			Where(where).
			Where(sq.Eq{"is_active": true}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build deactivate: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("deactivate documents: %w", err)
		}

		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.Version = latest + 1
		doc.Active = true
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now

		query, args, err = psql.Insert("documents").Columns(documentColumns...).Values(
			doc.ID, string(doc.Type), doc.ClassGroupID, doc.WeekStart, doc.Filename, doc.SourceURL,
			doc.BlobKey, doc.BlobURL, doc.MimeType, doc.Size, doc.Content, doc.ExtractedText,
			doc.Timetable, doc.Active, doc.Version, doc.CreatedAt, doc.UpdatedAt,
		).ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
}

// GetDocument returns a document by id.
func (r *Repository) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	query, args, err := psql.Select(documentColumns...).From("documents").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "document "+id)
	}
	return doc, nil
}

// ListDocuments returns matching documents, oldest first.
func (r *Repository) ListDocuments(ctx context.Context, filter model.DocumentFilter) ([]model.Document, error) {
	query, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(documentWhere(filter, true)).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SetExtractedText caches extracted text on a document.
func (r *Repository) SetExtractedText(ctx context.Context, id, text string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET extracted_text=$1, updated_at=$2 WHERE id=$3`,
		text, r.now(), id)
	if err != nil {
		return fmt.Errorf("update extracted text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "document "+id)
	}
	return nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var (
		doc     model.Document
		docType string
	)
	if err := row.Scan(
		&doc.ID, &docType, &doc.ClassGroupID, &doc.WeekStart, &doc.Filename, &doc.SourceURL,
		&doc.BlobKey, &doc.BlobURL, &doc.MimeType, &doc.Size, &doc.Content, &doc.ExtractedText,
		&doc.Timetable, &doc.Active, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.Type = model.DocumentType(docType)
	return &doc, nil
}
