package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aide-bot/aide/internal/models"
)

// scanRecords drains a result set of record rows.
func scanRecords(rows *sql.Rows, sheet string) ([]models.Record, error) {
	var out []models.Record
	for rows.Next() {
		var rec models.Record
		var fieldsJSON string
		if err := rows.Scan(&rec.ID, &rec.Sheet, &rec.UserID, &rec.Username, &fieldsJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", sheet, err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s row fields: %w", sheet, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", sheet, err)
	}
	return out, nil
}
