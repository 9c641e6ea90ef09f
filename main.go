package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rasoolshaik04/cipherchat/internal/crypto"
	"github.com/rasoolshaik04/cipherchat/internal/handlers"
	"github.com/rasoolshaik04/cipherchat/internal/middleware"
	"github.com/rasoolshaik04/cipherchat/internal/session"
	"github.com/rasoolshaik04/cipherchat/internal/store/sqlstore"
	"github.com/rasoolshaik04/cipherchat/internal/vault"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	// Load .env before flag defaults are read from the environment
	godotenv.Load()

	addr := flag.String("addr", envOr("CIPHERCHAT_ADDR", ":8080"), "http service address")
	dbDriver := flag.String("db-driver", envOr("CIPHERCHAT_DB_DRIVER", "sqlite3"), "database driver (sqlite3 or postgres)")
	dbDSN := flag.String("db-dsn", envOr("CIPHERCHAT_DB_DSN", "cipherchat.db"), "database connection string")
	uploadsDir := flag.String("uploads", envOr("CIPHERCHAT_UPLOADS", "uploads"), "directory for uploaded file payloads")
	maxUpload := flag.Int64("max-upload", envOrInt64("CIPHERCHAT_MAX_UPLOAD", vault.DefaultMaxSize), "maximum upload size in bytes")
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	store, err := sqlstore.New(*dbDriver, *dbDSN)
	if err != nil {
		log.Fatal(err)
	}

	fileVault, err := vault.New(*uploadsDir, *maxUpload)
	if err != nil {
		log.Fatal(err)
	}

	// Fresh key every start: messages stored by a previous process show up
	// as decryption-failed placeholders.
	cipher, err := crypto.NewCipher()
	if err != nil {
		log.Fatal(err)
	}

	sessions := session.NewManager()

	authHandler := &handlers.AuthHandler{Store: store, Sessions: sessions}
	chatHandler := &handlers.ChatHandler{Store: store, Cipher: cipher, Vault: fileVault}

	limiter := middleware.NewLimiterStore(30, 10, 5*time.Minute)
	limited := middleware.RateLimit(limiter)
	requireAPI := middleware.RequireSession(sessions, false)
	requirePage := middleware.RequireSession(sessions, true)

	r := mux.NewRouter()
	r.Use(middleware.Logging)

	r.HandleFunc("/", authHandler.Index).Methods("GET")
	r.Handle("/register", limited(http.HandlerFunc(authHandler.Register))).Methods("POST")
	r.Handle("/login", limited(http.HandlerFunc(authHandler.Login))).Methods("POST")
	r.HandleFunc("/login", loginPrompt).Methods("GET")
	r.HandleFunc("/logout", authHandler.Logout).Methods("GET")

	r.Handle("/dashboard", requirePage(http.HandlerFunc(authHandler.Dashboard))).Methods("GET")
	r.Handle("/chat/{receiverId}", requirePage(http.HandlerFunc(chatHandler.ChatContext))).Methods("GET")
	r.Handle("/download/{fileId}", requirePage(http.HandlerFunc(chatHandler.Download))).Methods("GET")

	r.Handle("/api/send_message", requireAPI(http.HandlerFunc(chatHandler.SendMessage))).Methods("POST")
	r.Handle("/api/get_messages/{receiverId}", requireAPI(http.HandlerFunc(chatHandler.GetMessages))).Methods("GET")
	r.Handle("/api/upload_file", requireAPI(http.HandlerFunc(chatHandler.UploadFile))).Methods("POST")
	r.Handle("/api/get_files/{receiverId}", requireAPI(http.HandlerFunc(chatHandler.GetFiles))).Methods("GET")

	log.Println("Starting server on", *addr)
	log.Fatal(http.ListenAndServe(*addr, r))
}

// The frontend is served separately; this keeps the redirect target for
// logged-out requests from being a 404.
func loginPrompt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("login required: POST /login with username and password\n"))
}
