package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rasoolshaik04/cipherchat/internal/middleware"
	"github.com/rasoolshaik04/cipherchat/internal/session"
	"github.com/rasoolshaik04/cipherchat/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	Store    store.Store
	Sessions *session.Manager
}

func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.Sessions.UserID(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if username == "" || password == "" {
		http.Error(w, "Username and password required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.Store.CreateUser(username, string(hashedPassword)); err != nil {
		if err == store.ErrDuplicateUsername {
			http.Error(w, "Username already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.Store.GetUserByUsername(username)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.Sessions.Start(w, user.ID)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Destroy(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Dashboard lists every user except the caller, as chat partners to pick from.
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	current, err := h.Store.GetUserByID(userID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	others, err := h.Store.ListOthers(userID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	type userEntry struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	entries := []userEntry{}
	for _, u := range others {
		entries = append(entries, userEntry{ID: u.ID, Username: u.Username})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"current_user": current.Username,
		"users":        entries,
	})
}
