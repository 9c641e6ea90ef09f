package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rasoolshaik04/cipherchat/internal/models"
	"github.com/rasoolshaik04/cipherchat/internal/store"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	// Simplified for brevity, ideally use migrations
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (sender_id) REFERENCES users(id),
		FOREIGN KEY (receiver_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		stored_name TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (sender_id) REFERENCES users(id),
		FOREIGN KEY (receiver_id) REFERENCES users(id)
	);
	`

	if s.driverName == "postgres" {
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMP")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) CreateUser(username, passwordHash string) (string, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)")
	if err := s.db.QueryRow(query, username).Scan(&exists); err != nil {
		return "", err
	}
	if exists {
		return "", store.ErrDuplicateUsername
	}

	id := uuid.NewString()
	query = s.rebind("INSERT INTO users (id, username, password) VALUES (?, ?, ?)")
	if _, err := s.db.Exec(query, id, username, passwordHash); err != nil {
		// Lost the race to the UNIQUE constraint
		if dup, derr := s.usernameTaken(username); derr == nil && dup {
			return "", store.ErrDuplicateUsername
		}
		return "", err
	}
	return id, nil
}

func (s *SQLStore) usernameTaken(username string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)")
	err := s.db.QueryRow(query, username).Scan(&exists)
	return exists, err
}

func (s *SQLStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, password FROM users WHERE username = ?")
	err := s.db.QueryRow(query, username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByID(id string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, password FROM users WHERE id = ?")
	err := s.db.QueryRow(query, id).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) ListOthers(excludeID string) ([]models.User, error) {
	// sqlite keeps insertion order via rowid; postgres has no equivalent
	order := "rowid"
	if s.driverName == "postgres" {
		order = "username"
	}
	query := s.rebind("SELECT id, username FROM users WHERE id != ?") + " ORDER BY " + order
	rows, err := s.db.Query(query, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLStore) SaveMessage(senderID, receiverID, ciphertext string) (string, error) {
	id := uuid.NewString()
	query := s.rebind("INSERT INTO messages (id, sender_id, receiver_id, content, timestamp) VALUES (?, ?, ?, ?, ?)")
	_, err := s.db.Exec(query, id, senderID, receiverID, ciphertext, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLStore) GetConversation(userA, userB string) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, sender_id, receiver_id, content, timestamp
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp ASC, id ASC
	`)
	rows, err := s.db.Query(query, userA, userB, userB, userA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SaveFile fills in the record's ID and Timestamp.
func (s *SQLStore) SaveFile(rec *models.FileRecord) error {
	rec.ID = uuid.NewString()
	rec.Timestamp = time.Now().UTC()
	query := s.rebind("INSERT INTO files (id, sender_id, receiver_id, stored_name, display_name, content_type, size_bytes, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := s.db.Exec(query, rec.ID, rec.SenderID, rec.ReceiverID, rec.StoredName, rec.DisplayName, rec.ContentType, rec.SizeBytes, rec.Timestamp)
	return err
}

func (s *SQLStore) GetConversationFiles(userA, userB string) ([]models.FileRecord, error) {
	query := s.rebind(`
		SELECT id, sender_id, receiver_id, stored_name, display_name, content_type, size_bytes, timestamp
		FROM files
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY timestamp ASC, id ASC
	`)
	rows, err := s.db.Query(query, userA, userB, userB, userA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		var f models.FileRecord
		if err := rows.Scan(&f.ID, &f.SenderID, &f.ReceiverID, &f.StoredName, &f.DisplayName, &f.ContentType, &f.SizeBytes, &f.Timestamp); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetFileForParticipant returns the record only when userID is its sender or
// receiver. Absent and forbidden both come back as ErrNotFound so the caller
// cannot distinguish them.
func (s *SQLStore) GetFileForParticipant(fileID, userID string) (*models.FileRecord, error) {
	var f models.FileRecord
	query := s.rebind(`
		SELECT id, sender_id, receiver_id, stored_name, display_name, content_type, size_bytes, timestamp
		FROM files
		WHERE id = ? AND (sender_id = ? OR receiver_id = ?)
	`)
	err := s.db.QueryRow(query, fileID, userID, userID).Scan(&f.ID, &f.SenderID, &f.ReceiverID, &f.StoredName, &f.DisplayName, &f.ContentType, &f.SizeBytes, &f.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
