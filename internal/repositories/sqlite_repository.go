package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id              TEXT PRIMARY KEY,
		source_language TEXT NOT NULL,
		target_language TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		status          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id              TEXT PRIMARY KEY,
		document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		page_number     INTEGER NOT NULL,
		image           BLOB,
		recognized_text TEXT,
		translated_text TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id, page_number)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id   INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_records (
		code        TEXT PRIMARY KEY,
		recorded_at INTEGER NOT NULL
	)`,
}

// SQLiteRepository stores documents, settings and model records in a single SQLite file
type SQLiteRepository struct {
	db     *sql.DB
	logger *zap.Logger

	schemaOnce sync.Once
	schemaErr  error
}

// NewSQLiteRepository opens (and creates when missing) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteRepository(path string, logger *zap.Logger) (*SQLiteRepository, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection: SQLite serialises writers, and every :memory: connection is a separate database
	db.SetMaxOpenConns(1)

	repo := &SQLiteRepository{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := repo.EnsureCollections(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureCollections creates the tables once
func (r *SQLiteRepository) EnsureCollections(ctx context.Context) error {
	r.schemaOnce.Do(func() {
		for _, stmt := range sqliteSchema {
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				r.schemaErr = domain.NewStorageError("migrate", err)
				return
			}
		}
		r.logger.Info("sqlite schema ready")
	})
	return r.schemaErr
}

// CheckConnection pings the database
func (r *SQLiteRepository) CheckConnection(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.NewStorageError("ping", err)
	}
	return nil
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Save upserts a document and replaces its pages in one transaction
func (r *SQLiteRepository) Save(ctx context.Context, doc domain.Document) error {
	source, err := json.Marshal(doc.SourceLanguage)
	if err != nil {
		return domain.NewStorageError("encode source language", err)
	}
	target, err := json.Marshal(doc.TargetLanguage)
	if err != nil {
		return domain.NewStorageError("encode target language", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_language, target_language, created_at, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_language = excluded.source_language,
			target_language = excluded.target_language,
			created_at      = excluded.created_at,
			status          = excluded.status`,
		doc.ID.String(), string(source), string(target), doc.CreatedAt.UnixNano(), string(doc.Status),
	)
	if err != nil {
		return domain.NewStorageError("save document", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE document_id = ?`, doc.ID.String()); err != nil {
		return domain.NewStorageError("replace pages", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pages (id, document_id, page_number, image, recognized_text, translated_text)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return domain.NewStorageError("prepare pages", err)
	}
	defer stmt.Close()

	for _, page := range doc.Pages {
		_, err := stmt.ExecContext(ctx,
			page.ID.String(), doc.ID.String(), page.PageNumber, page.ImageData,
			nullString(page.RecognizedText), nullString(page.TranslatedText),
		)
		if err != nil {
			return domain.NewStorageError(fmt.Sprintf("save page %d", page.PageNumber), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit", err)
	}
	return nil
}

// GetByID loads one document with its pages
func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_language, target_language, created_at, status
		FROM documents WHERE id = ?`, id.String())

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, domain.NewStorageError("get", err)
	}

	pages, err := r.loadPages(ctx, `WHERE document_id = ?`, id.String())
	if err != nil {
		return domain.Document{}, err
	}
	doc.Pages = pages[doc.ID]
	if doc.Pages == nil {
		doc.Pages = []domain.DocumentPage{}
	}
	return doc, nil
}

// FetchAll loads every document, newest first
func (r *SQLiteRepository) FetchAll(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_language, target_language, created_at, status
		FROM documents ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, domain.NewStorageError("fetch all", err)
	}

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, domain.NewStorageError("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, domain.NewStorageError("fetch all", err)
	}
	// the single connection must be released before the pages query
	rows.Close()

	pages, err := r.loadPages(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Pages = pages[docs[i].ID]
		if docs[i].Pages == nil {
			docs[i].Pages = []domain.DocumentPage{}
		}
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

// Delete removes a document and its pages
func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.inTx(ctx, "delete", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE document_id = ?`, id.String()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
		return err
	})
}

// ClearAll removes every document
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	return r.inTx(ctx, "clear all", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents`)
		return err
	})
}

// LoadSettings returns the stored settings
func (r *SQLiteRepository) LoadSettings(ctx context.Context) (domain.AppSettings, bool, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AppSettings{}, false, nil
	}
	if err != nil {
		return domain.AppSettings{}, false, domain.NewStorageError("load settings", err)
	}

	var settings domain.AppSettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return domain.AppSettings{}, false, domain.NewStorageError("decode settings", err)
	}
	return settings, true, nil
}

// SaveSettings replaces the stored settings
func (r *SQLiteRepository) SaveSettings(ctx context.Context, settings domain.AppSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return domain.NewStorageError("encode settings", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	return domain.NewStorageError("save settings", err)
}

// IsRecorded reports whether a model is recorded as downloaded
func (r *SQLiteRepository) IsRecorded(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM model_records WHERE code = ?`, code).Scan(&n)
	if err != nil {
		return false, domain.NewStorageError("lookup model", err)
	}
	return n > 0, nil
}

// Record marks a model as downloaded
func (r *SQLiteRepository) Record(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO model_records (code, recorded_at) VALUES (?, ?)
		ON CONFLICT(code) DO NOTHING`, code, time.Now().Unix())
	return domain.NewStorageError("record model", err)
}

// Remove forgets a model
func (r *SQLiteRepository) Remove(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM model_records WHERE code = ?`, code)
	return domain.NewStorageError("remove model", err)
}

// List returns the recorded model codes in lexical order
func (r *SQLiteRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code FROM model_records ORDER BY code`)
	if err != nil {
		return nil, domain.NewStorageError("list models", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, domain.NewStorageError("scan model", err)
		}
		codes = append(codes, code)
	}
	return codes, domain.NewStorageError("list models", rows.Err())
}

func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return domain.NewStorageError(op, err)
	}
	return domain.NewStorageError(op, tx.Commit())
}

// loadPages returns pages grouped by document, ordered by page number
func (r *SQLiteRepository) loadPages(ctx context.Context, where string, args ...any) (map[uuid.UUID][]domain.DocumentPage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, image, recognized_text, translated_text
		FROM pages `+where+` ORDER BY document_id, page_number`, args...)
	if err != nil {
		return nil, domain.NewStorageError("load pages", err)
	}
	defer rows.Close()

	pages := make(map[uuid.UUID][]domain.DocumentPage)
	for rows.Next() {
		var (
			pageID, docID          string
			page                   domain.DocumentPage
			image                  []byte
			recognized, translated sql.NullString
		)
		if err := rows.Scan(&pageID, &docID, &page.PageNumber, &image, &recognized, &translated); err != nil {
			return nil, domain.NewStorageError("scan page", err)
		}
		if page.ID, err = uuid.Parse(pageID); err != nil {
			return nil, domain.NewStorageError("decode page id", err)
		}
		documentID, err := uuid.Parse(docID)
		if err != nil {
			return nil, domain.NewStorageError("decode document id", err)
		}
		if len(image) > 0 {
			page.ImageData = image
		}
		if recognized.Valid {
			page = page.WithRecognizedText(recognized.String)
		}
		if translated.Valid {
			page = page.WithTranslatedText(translated.String)
		}
		pages[documentID] = append(pages[documentID], page)
	}
	return pages, domain.NewStorageError("load pages", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		id, source, target, status string
		createdAt                  int64
		doc                        domain.Document
	)
	if err := row.Scan(&id, &source, &target, &createdAt, &status); err != nil {
		return doc, err
	}

	var err error
	if doc.ID, err = uuid.Parse(id); err != nil {
		return doc, fmt.Errorf("decode id: %w", err)
	}
	if err := json.Unmarshal([]byte(source), &doc.SourceLanguage); err != nil {
		return doc, fmt.Errorf("decode source language: %w", err)
	}
	if err := json.Unmarshal([]byte(target), &doc.TargetLanguage); err != nil {
		return doc, fmt.Errorf("decode target language: %w", err)
	}
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	doc.Status = domain.ProcessingStatus(status)
	return doc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var (
	_ domain.DocumentStore    = (*SQLiteRepository)(nil)
	_ domain.SettingsStore    = (*SQLiteRepository)(nil)
	_ domain.ModelRecordStore = (*SQLiteRepository)(nil)
	_ domain.HealthChecker    = (*SQLiteRepository)(nil)
)
