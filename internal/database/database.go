package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"whatsingest/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL UNIQUE,
	sender TEXT NOT NULL,
	content TEXT,
	message_type TEXT NOT NULL,
	message_timestamp TEXT NOT NULL,
	media_url TEXT,
	media_filename TEXT,
	media_size INTEGER,
	media_path TEXT,
	extracted_at TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(message_type);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(message_timestamp);
`

// Store persists extracted message records. Persistence lives on the
// caller's side of the client boundary: the client returns in-memory
// results and this store is how the commands keep them.
type Store struct {
	db        *sql.DB
	encryptor *encryptor
}

// New opens (creating if needed) the sqlite store at dbPath.
func New(dbPath string) (*Store, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Store{db: db, encryptor: enc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMessage inserts a record, silently ignoring a duplicate message
// id so re-running an extraction over the same range is idempotent.
// It reports whether the record was newly inserted.
func (s *Store) SaveMessage(ctx context.Context, rec models.MessageRecord, mediaPath string) (bool, error) {
	lookupID, err := s.encryptor.EncryptForLookup(rec.ID)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt message id: %w", err)
	}

	sender, err := s.encryptor.Encrypt(rec.SenderPhone)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt sender: %w", err)
	}

	content, err := s.encryptor.Encrypt(rec.Content)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt content: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO messages (
			message_id, sender, content, message_type, message_timestamp,
			media_url, media_filename, media_size, media_path, extracted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := execWithRetry(ctx, s.db, query,
		lookupID,
		sender,
		content,
		rec.Type,
		rec.Timestamp,
		rec.MediaURL,
		rec.MediaFilename,
		rec.MediaSize,
		mediaPath,
		rec.ExtractedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows > 0, nil
}

// HasMessage reports whether a record with the given provider message
// id is already stored.
func (s *Store) HasMessage(ctx context.Context, messageID string) (bool, error) {
	lookupID, err := s.encryptor.EncryptForLookup(messageID)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt message id: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE message_id = ?`, lookupID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query message: %w", err)
	}
	return count > 0, nil
}

// GetMessage fetches one stored record by provider message id.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.MessageRecord, error) {
	lookupID, err := s.encryptor.EncryptForLookup(messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT sender, content, message_type, message_timestamp,
			media_url, media_filename, media_size, extracted_at
		FROM messages WHERE message_id = ?
	`, lookupID)

	rec := models.MessageRecord{ID: messageID}
	var mediaURL, mediaFilename sql.NullString
	var mediaSize sql.NullInt64
	err = row.Scan(&rec.SenderPhone, &rec.Content, &rec.Type, &rec.Timestamp,
		&mediaURL, &mediaFilename, &mediaSize, &rec.ExtractedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	if rec.SenderPhone, err = s.encryptor.Decrypt(rec.SenderPhone); err != nil {
		return nil, fmt.Errorf("failed to decrypt sender: %w", err)
	}
	if rec.Content, err = s.encryptor.Decrypt(rec.Content); err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}

	rec.MediaURL = mediaURL.String
	rec.MediaFilename = mediaFilename.String
	rec.MediaSize = mediaSize.Int64
	return &rec, nil
}

// UpdateMediaPath records where a message's media was downloaded.
func (s *Store) UpdateMediaPath(ctx context.Context, messageID, mediaPath string) error {
	lookupID, err := s.encryptor.EncryptForLookup(messageID)
	if err != nil {
		return fmt.Errorf("failed to encrypt message id: %w", err)
	}

	_, err = execWithRetry(ctx, s.db,
		`UPDATE messages SET media_path = ? WHERE message_id = ?`, mediaPath, lookupID)
	if err != nil {
		return fmt.Errorf("failed to update media path: %w", err)
	}
	return nil
}

// CountMessages returns how many records the store holds.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
