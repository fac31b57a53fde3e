package record

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DefaultImageTable is the table read by SQLiteSource.
const DefaultImageTable = "images"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource streams image records from an existing image-info database.
//
// The table must provide the columns id, file_name, title, tags, location,
// lat and lng. NULL columns become empty strings.
type SQLiteSource struct {
	db    *sql.DB
	table string
	rows  *sql.Rows
}

// OpenSQLite opens the database at path read-only.
func OpenSQLite(path, table string) (*SQLiteSource, error) {
	if table == "" {
		table = DefaultImageTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open image database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open image database: %w", err)
	}

	return &SQLiteSource{db: db, table: table}, nil
}

// Next implements Source. The query is issued lazily on the first call.
func (s *SQLiteSource) Next(ctx context.Context) (*Record, error) {
	if s.rows == nil {
		query := fmt.Sprintf(`SELECT id, file_name, title, tags, location, lat, lng
			FROM %s ORDER BY rowid`, s.table)
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
		}
		s.rows = rows
	}

	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", s.table, err)
		}
		return nil, io.EOF
	}

	var id, file, title, tags, location, lat, lng sql.NullString
	if err := s.rows.Scan(&id, &file, &title, &tags, &location, &lat, &lng); err != nil {
		return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
	}

	return &Record{
		ID:       id.String,
		FileRef:  file.String,
		Title:    title.String,
		Tags:     tags.String,
		Location: location.String,
		Lat:      lat.String,
		Lng:      lng.String,
	}, nil
}

// Close implements Source.
func (s *SQLiteSource) Close() error {
	if s.rows != nil {
		_ = s.rows.Close()
	}
	return s.db.Close()
}
