package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rasoolshaik04/cipherchat/internal/crypto"
	"github.com/rasoolshaik04/cipherchat/internal/middleware"
	"github.com/rasoolshaik04/cipherchat/internal/models"
	"github.com/rasoolshaik04/cipherchat/internal/store"
	"github.com/rasoolshaik04/cipherchat/internal/vault"
)

// decryptionPlaceholder replaces the content of rows whose ciphertext no
// longer decrypts (corrupted, or sealed under a previous process's key).
const decryptionPlaceholder = "[Decryption failed]"

type ChatHandler struct {
	Store  store.Store
	Cipher *crypto.Cipher
	Vault  *vault.Vault

	// message ids already reported as undecryptable; polling clients
	// re-fetch the same broken rows forever, so each is logged once
	loggedFailures sync.Map
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ChatContext resolves the receiver for a chat page. Unknown receivers send
// the caller back to the dashboard.
func (h *ChatHandler) ChatContext(w http.ResponseWriter, r *http.Request) {
	receiverID := mux.Vars(r)["receiverId"]

	receiver, err := h.Store.GetUserByID(receiverID)
	if err != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"receiver_id":   receiver.ID,
		"receiver_name": receiver.Username,
	})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.UserID(r)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Missing data", http.StatusBadRequest)
		return
	}
	if senderID == "" || req.ReceiverID == "" || req.Content == "" {
		jsonError(w, "Missing data", http.StatusBadRequest)
		return
	}

	ciphertext, err := h.Cipher.Encrypt([]byte(req.Content))
	if err != nil {
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	msgID, err := h.Store.SaveMessage(senderID, req.ReceiverID, ciphertext)
	if err != nil {
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message_id": msgID,
	})
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	receiverID := mux.Vars(r)["receiverId"]

	messages, err := h.Store.GetConversation(userID, receiverID)
	if err != nil {
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	views := []models.MessageView{}
	for _, m := range messages {
		content := decryptionPlaceholder
		plaintext, err := h.Cipher.Decrypt(m.Content)
		if err != nil {
			if _, seen := h.loggedFailures.LoadOrStore(m.ID, struct{}{}); !seen {
				log.Printf("message %s: %v", m.ID, err)
			}
		} else {
			content = string(plaintext)
		}
		views = append(views, models.MessageView{
			ID:        m.ID,
			SenderID:  m.SenderID,
			IsSent:    m.SenderID == userID,
			Content:   content,
			Timestamp: m.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

// uploadFormOverhead covers multipart boundaries and the receiver_id field
// on top of the payload cap.
const uploadFormOverhead = 4 << 10

func (h *ChatHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	senderID := middleware.UserID(r)

	// Cap the body before multipart parsing so oversized uploads are cut
	// off instead of spooling to disk in full.
	r.Body = http.MaxBytesReader(w, r.Body, h.Vault.MaxSize()+uploadFormOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			jsonError(w, "File too large", http.StatusBadRequest)
			return
		}
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	receiverID := r.FormValue("receiver_id")
	if header.Filename == "" || receiverID == "" {
		jsonError(w, "Missing data", http.StatusBadRequest)
		return
	}

	stored, err := h.Vault.Accept(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrEmptyFilename):
			jsonError(w, "Missing data", http.StatusBadRequest)
		case errors.Is(err, vault.ErrExtensionNotAllowed):
			jsonError(w, "File type not allowed", http.StatusBadRequest)
		case errors.Is(err, vault.ErrTooLarge):
			jsonError(w, "File too large", http.StatusBadRequest)
		default:
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	rec := &models.FileRecord{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		StoredName:  stored.StoredName,
		DisplayName: stored.DisplayName,
		ContentType: stored.ContentType,
		SizeBytes:   stored.SizeBytes,
	}
	if err := h.Store.SaveFile(rec); err != nil {
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"file_id":   rec.ID,
		"filename":  rec.DisplayName,
		"mime_type": rec.ContentType,
	})
}

func (h *ChatHandler) GetFiles(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	receiverID := mux.Vars(r)["receiverId"]

	files, err := h.Store.GetConversationFiles(userID, receiverID)
	if err != nil {
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	views := []models.FileView{}
	for _, f := range files {
		views = append(views, models.FileView{
			ID:        f.ID,
			SenderID:  f.SenderID,
			IsSent:    f.SenderID == userID,
			Filename:  f.DisplayName,
			MimeType:  f.ContentType,
			SizeBytes: f.SizeBytes,
			Timestamp: f.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

// Download streams a file payload to a conversation participant. Missing
// records and records the caller is not part of both come back 404.
func (h *ChatHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	fileID := mux.Vars(r)["fileId"]

	rec, err := h.Store.GetFileForParticipant(fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, "File not found", http.StatusNotFound)
			return
		}
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	f, err := h.Vault.Open(rec.StoredName)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			jsonError(w, "File not found", http.StatusNotFound)
			return
		}
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.DisplayName+`"`)
	http.ServeContent(w, r, rec.DisplayName, rec.Timestamp, f)
}
