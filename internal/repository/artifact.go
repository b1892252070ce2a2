package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
)

// ReplaceWeek deletes the stored reminders and overview for the pair and
// inserts the new ones in the same transaction.
func (r *Repository) ReplaceWeek(ctx context.Context, classGroupID string, weekStart time.Time, artifact *model.Artifact) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM daily_reminders WHERE class_group_id=$1 AND week_start_date=$2`,
			classGroupID, weekStart); err != nil {
			return fmt.Errorf("delete reminders: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM weekly_overviews WHERE class_group_id=$1 AND week_start_date=$2`,
			classGroupID, weekStart); err != nil {
			return fmt.Errorf("delete overview: %w", err)
		}

		now := r.now()
		if len(artifact.Reminders) > 0 {
			insert := psql.Insert("daily_reminders").Columns(
				"id", "class_group_id", "week_start_date", "reminder_date",
				"title", "description", "priority", "category", "position", "created_at")
			for i, rem := range artifact.Reminders {
				insert = insert.Values(uuid.NewString(), classGroupID, weekStart, rem.Date,
					rem.Title, rem.Description, string(rem.Priority), rem.Category, i, now)
			}
			query, args, err := insert.ToSql()
			if err != nil {
				return fmt.Errorf("build reminder insert: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("insert reminders: %w", err)
			}
		}

		if artifact.Overview == nil {
			return nil
		}
		// Nil slices are stored as a JSON null and empty ones as [], so reads
		// return exactly what was written.
		ov := artifact.Overview
		highlights, err := json.Marshal(ov.KeyHighlights)
		if err != nil {
			return fmt.Errorf("encode highlights: %w", err)
		}
		dates, err := json.Marshal(ov.ImportantDates)
		if err != nil {
			return fmt.Errorf("encode important dates: %w", err)
		}
		summary, err := json.Marshal(ov.MailingSummary)
		if err != nil {
			return fmt.Errorf("encode mailing summary: %w", err)
		}
		var suggestions []byte
		if artifact.Suggestions != nil {
			if suggestions, err = json.Marshal(artifact.Suggestions); err != nil {
				return fmt.Errorf("encode suggestions: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO weekly_overviews (id, class_group_id, week_start_date, summary, key_highlights,
				important_dates, weekly_mailing_summary, knowledge_sheet_suggestions, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, uuid.NewString(), classGroupID, weekStart, ov.Summary, highlights, dates, summary, suggestions, now); err != nil {
			return fmt.Errorf("insert overview: %w", err)
		}
		return nil
	})
}

// GetWeek loads the stored artifact set for the pair.
func (r *Repository) GetWeek(ctx context.Context, classGroupID string, weekStart time.Time) (*model.WeekArtifacts, error) {
	query, args, err := psql.Select("id", "reminder_date", "title", "description", "priority", "category").
		From("daily_reminders").
		Where(sq.Eq{"class_group_id": classGroupID, "week_start_date": weekStart}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	set := &model.WeekArtifacts{ClassGroupID: classGroupID, WeekStart: weekStart, Reminders: []model.Reminder{}}
	for rows.Next() {
		var (
			rem      model.Reminder
			priority string
		)
		if err := rows.Scan(&rem.ID, &rem.Date, &rem.Title, &rem.Description, &priority, &rem.Category); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		rem.Priority = model.Priority(priority)
		rem.ClassGroupID = classGroupID
		rem.WeekStart = weekStart
		set.Reminders = append(set.Reminders, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	var (
		ov                                   model.Overview
		highlights, dates, summary, suggests []byte
	)
	err = r.pool.QueryRow(ctx, `
		SELECT id, summary, key_highlights, important_dates, weekly_mailing_summary, knowledge_sheet_suggestions
		FROM weekly_overviews WHERE class_group_id=$1 AND week_start_date=$2
	`, classGroupID, weekStart).Scan(&ov.ID, &ov.Summary, &highlights, &dates, &summary, &suggests)
	switch {
	case err == nil:
		if err := decodeOverview(&ov, highlights, dates, summary); err != nil {
			return nil, err
		}
		set.Overview = &ov
		if len(suggests) > 0 {
			set.Suggestions = &model.Suggestions{}
			if err := json.Unmarshal(suggests, set.Suggestions); err != nil {
				return nil, fmt.Errorf("decode suggestions: %w", err)
			}
		}
	case errors.Is(err, pgx.ErrNoRows):
		if len(set.Reminders) == 0 {
			return nil, fmt.Errorf("artifacts for %s: %w", classGroupID, ports.ErrNotFound)
		}
	default:
		return nil, fmt.Errorf("select overview: %w", err)
	}
	return set, nil
}

func decodeOverview(ov *model.Overview, highlights, dates, summary []byte) error {
	if err := json.Unmarshal(highlights, &ov.KeyHighlights); err != nil {
		return fmt.Errorf("decode highlights: %w", err)
	}
	if err := json.Unmarshal(dates, &ov.ImportantDates); err != nil {
		return fmt.Errorf("decode important dates: %w", err)
	}
	if err := json.Unmarshal(summary, &ov.MailingSummary); err != nil {
		return fmt.Errorf("decode mailing summary: %w", err)
	}
	return nil
}
