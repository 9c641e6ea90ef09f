package store

import (
	"errors"

	"github.com/rasoolshaik04/cipherchat/internal/models"
)

var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrNotFound          = errors.New("not found")
)

type Store interface {
	// User operations
	CreateUser(username, passwordHash string) (string, error)
	GetUserByUsername(username string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	ListOthers(excludeID string) ([]models.User, error)

	// Conversation operations
	SaveMessage(senderID, receiverID, ciphertext string) (string, error)
	GetConversation(userA, userB string) ([]models.Message, error)
	SaveFile(rec *models.FileRecord) error
	GetConversationFiles(userA, userB string) ([]models.FileRecord, error)
	GetFileForParticipant(fileID, userID string) (*models.FileRecord, error)
}
