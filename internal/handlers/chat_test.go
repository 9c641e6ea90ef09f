package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rasoolshaik04/cipherchat/internal/crypto"
	"github.com/rasoolshaik04/cipherchat/internal/middleware"
	"github.com/rasoolshaik04/cipherchat/internal/models"
	"github.com/rasoolshaik04/cipherchat/internal/session"
	"github.com/rasoolshaik04/cipherchat/internal/store/sqlstore"
	"github.com/rasoolshaik04/cipherchat/internal/vault"
)

type chatEnv struct {
	store    *sqlstore.SQLStore
	sessions *session.Manager
	handler  *ChatHandler

	alice, bob, carol          string
	aliceSID, bobSID, carolSID string
}

func newChatEnv(t *testing.T) *chatEnv {
	return newChatEnvWithUploadCap(t, 0)
}

func newChatEnvWithUploadCap(t *testing.T, maxUpload int64) *chatEnv {
	t.Helper()

	store, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	cipher, err := crypto.NewCipher()
	if err != nil {
		t.Fatal(err)
	}
	fileVault, err := vault.New(t.TempDir(), maxUpload)
	if err != nil {
		t.Fatal(err)
	}

	env := &chatEnv{
		store:    store,
		sessions: session.NewManager(),
		handler:  &ChatHandler{Store: store, Cipher: cipher, Vault: fileVault},
	}
	env.alice, _ = store.CreateUser("alice", "hash")
	env.bob, _ = store.CreateUser("bob", "hash")
	env.carol, _ = store.CreateUser("carol", "hash")
	env.aliceSID = env.sessions.Start(httptest.NewRecorder(), env.alice)
	env.bobSID = env.sessions.Start(httptest.NewRecorder(), env.bob)
	env.carolSID = env.sessions.Start(httptest.NewRecorder(), env.carol)
	return env
}

// serve runs req through the session gate and the given handler.
func (env *chatEnv) serve(handler http.HandlerFunc, req *http.Request, sid string) *httptest.ResponseRecorder {
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sid})
	}
	rr := httptest.NewRecorder()
	middleware.RequireSession(env.sessions, false)(handler).ServeHTTP(rr, req)
	return rr
}

func (env *chatEnv) sendMessage(t *testing.T, sid, receiverID, content string) {
	t.Helper()
	body, _ := json.Marshal(SendMessageRequest{ReceiverID: receiverID, Content: content})
	req := httptest.NewRequest("POST", "/api/send_message", bytes.NewReader(body))
	rr := env.serve(env.handler.SendMessage, req, sid)
	if rr.Code != http.StatusOK {
		t.Fatalf("send_message returned %d: %s", rr.Code, rr.Body.String())
	}
}

func (env *chatEnv) getMessages(t *testing.T, sid, receiverID string) []models.MessageView {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/get_messages/"+receiverID, nil)
	req = mux.SetURLVars(req, map[string]string{"receiverId": receiverID})
	rr := env.serve(env.handler.GetMessages, req, sid)
	if rr.Code != http.StatusOK {
		t.Fatalf("get_messages returned %d: %s", rr.Code, rr.Body.String())
	}
	var views []models.MessageView
	if err := json.NewDecoder(rr.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	return views
}

func TestSendAndGetMessages(t *testing.T) {
	env := newChatEnv(t)

	env.sendMessage(t, env.aliceSID, env.bob, "hello bob")
	env.sendMessage(t, env.bobSID, env.alice, "hi alice")
	env.sendMessage(t, env.aliceSID, env.bob, "how are you")

	views := env.getMessages(t, env.aliceSID, env.bob)
	if len(views) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(views))
	}

	wantContent := []string{"hello bob", "hi alice", "how are you"}
	wantSent := []bool{true, false, true}
	for i, v := range views {
		if v.Content != wantContent[i] {
			t.Errorf("Position %d: expected %q, got %q", i, wantContent[i], v.Content)
		}
		if v.IsSent != wantSent[i] {
			t.Errorf("Position %d: expected is_sent=%v", i, wantSent[i])
		}
	}

	// Stored rows must be ciphertext, not the plaintext
	rows, _ := env.store.GetConversation(env.alice, env.bob)
	for _, m := range rows {
		if m.Content == "hello bob" || m.Content == "hi alice" {
			t.Error("Message stored in plain form")
		}
	}

	// Carol sees none of it
	if views := env.getMessages(t, env.carolSID, env.alice); len(views) != 0 {
		t.Errorf("Expected empty conversation for carol, got %d messages", len(views))
	}
}

func TestSendMessageMissingField(t *testing.T) {
	env := newChatEnv(t)

	for _, req := range []SendMessageRequest{
		{ReceiverID: "", Content: "hello"},
		{ReceiverID: env.bob, Content: ""},
	} {
		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/api/send_message", bytes.NewReader(body))
		rr := env.serve(env.handler.SendMessage, r, env.aliceSID)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %+v, got %d", req, rr.Code)
		}
	}
}

func TestGetMessagesUnauthorized(t *testing.T) {
	env := newChatEnv(t)

	req := httptest.NewRequest("GET", "/api/get_messages/"+env.bob, nil)
	req = mux.SetURLVars(req, map[string]string{"receiverId": env.bob})
	rr := env.serve(env.handler.GetMessages, req, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a session, got %d", rr.Code)
	}
}

func TestGetMessagesCorruptedRowYieldsPlaceholder(t *testing.T) {
	env := newChatEnv(t)

	env.sendMessage(t, env.aliceSID, env.bob, "first")
	// Row whose ciphertext can never decrypt
	env.store.SaveMessage(env.alice, env.bob, "garbled-not-a-ciphertext")
	env.sendMessage(t, env.aliceSID, env.bob, "third")

	views := env.getMessages(t, env.aliceSID, env.bob)
	if len(views) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(views))
	}
	if views[0].Content != "first" || views[2].Content != "third" {
		t.Error("Healthy rows must still decrypt")
	}
	if views[1].Content != decryptionPlaceholder {
		t.Errorf("Expected placeholder for corrupted row, got %q", views[1].Content)
	}
}

func TestDecryptionFailureLoggedOnce(t *testing.T) {
	env := newChatEnv(t)

	msgID, err := env.store.SaveMessage(env.alice, env.bob, "garbled-not-a-ciphertext")
	if err != nil {
		t.Fatal(err)
	}

	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	// Polling clients fetch the same broken row repeatedly
	env.getMessages(t, env.aliceSID, env.bob)
	env.getMessages(t, env.aliceSID, env.bob)
	env.getMessages(t, env.aliceSID, env.bob)

	if n := strings.Count(logged.String(), msgID); n != 1 {
		t.Errorf("Expected the broken row to be logged once, got %d occurrences", n)
	}
}

func multipartUpload(t *testing.T, filename, receiverID string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	w.WriteField("receiver_id", receiverID)
	w.Close()
	return &buf, w.FormDataContentType()
}

func (env *chatEnv) uploadFile(t *testing.T, sid, filename, receiverID string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, receiverID, content)
	req := httptest.NewRequest("POST", "/api/upload_file", body)
	req.Header.Set("Content-Type", contentType)
	return env.serve(env.handler.UploadFile, req, sid)
}

func TestUploadAndDownload(t *testing.T) {
	env := newChatEnv(t)

	rr := env.uploadFile(t, env.aliceSID, "notes.txt", env.bob, []byte("shared secret notes"))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload returned %d: %s", rr.Code, rr.Body.String())
	}

	var uploadResp struct {
		FileID   string `json:"file_id"`
		Filename string `json:"filename"`
		MimeType string `json:"mime_type"`
	}
	json.NewDecoder(rr.Body).Decode(&uploadResp)
	if uploadResp.FileID == "" {
		t.Fatal("Expected a file_id in the upload response")
	}
	if uploadResp.Filename != "notes.txt" {
		t.Errorf("Expected filename 'notes.txt', got %q", uploadResp.Filename)
	}

	download := func(sid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/download/"+uploadResp.FileID, nil)
		req = mux.SetURLVars(req, map[string]string{"fileId": uploadResp.FileID})
		return env.serve(env.handler.Download, req, sid)
	}

	// Receiver downloads
	rr = download(env.bobSID)
	if rr.Code != http.StatusOK {
		t.Fatalf("download returned %d: %s", rr.Code, rr.Body.String())
	}
	payload, _ := io.ReadAll(rr.Body)
	if string(payload) != "shared secret notes" {
		t.Errorf("Payload mismatch: got %q", payload)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes.txt") {
		t.Errorf("Expected display name in Content-Disposition, got %q", cd)
	}

	// Sender may download too
	if rr := download(env.aliceSID); rr.Code != http.StatusOK {
		t.Errorf("Expected sender download to succeed, got %d", rr.Code)
	}

	// A third user gets 404, not the payload
	if rr := download(env.carolSID); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for non-participant, got %d", rr.Code)
	}
}

func TestDownloadUnknownFile(t *testing.T) {
	env := newChatEnv(t)

	req := httptest.NewRequest("GET", "/download/no-such-id", nil)
	req = mux.SetURLVars(req, map[string]string{"fileId": "no-such-id"})
	rr := env.serve(env.handler.Download, req, env.aliceSID)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown file, got %d", rr.Code)
	}
}

func TestUploadDisallowedExtension(t *testing.T) {
	env := newChatEnv(t)

	rr := env.uploadFile(t, env.aliceSID, "payload.exe", env.bob, []byte("MZ"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for .exe upload, got %d", rr.Code)
	}

	// The rejection must leave no metadata behind
	files, _ := env.store.GetConversationFiles(env.alice, env.bob)
	if len(files) != 0 {
		t.Errorf("Expected no file rows after rejection, got %d", len(files))
	}
}

// countingReader tracks how much of the request body a handler consumes.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestUploadOversizedBodyCutOffEarly(t *testing.T) {
	env := newChatEnvWithUploadCap(t, 10)

	body, contentType := multipartUpload(t, "big.txt", env.bob, bytes.Repeat([]byte("a"), 1<<20))
	counting := &countingReader{r: bytes.NewReader(body.Bytes())}
	total := int64(body.Len())

	req := httptest.NewRequest("POST", "/api/upload_file", counting)
	req.Header.Set("Content-Type", contentType)
	rr := env.serve(env.handler.UploadFile, req, env.aliceSID)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for oversized upload, got %d", rr.Code)
	}

	// The body must be cut off near the cap, not read to the end
	if counting.n >= total {
		t.Errorf("Handler consumed the full %d-byte body", total)
	}
	if counting.n > 64<<10 {
		t.Errorf("Handler consumed %d bytes against a 10-byte cap", counting.n)
	}

	files, _ := env.store.GetConversationFiles(env.alice, env.bob)
	if len(files) != 0 {
		t.Errorf("Expected no file rows after rejection, got %d", len(files))
	}
}

func TestUploadMissingReceiver(t *testing.T) {
	env := newChatEnv(t)

	rr := env.uploadFile(t, env.aliceSID, "notes.txt", "", []byte("data"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing receiver, got %d", rr.Code)
	}
}

func TestUploadsWithSameNameDoNotCollide(t *testing.T) {
	env := newChatEnv(t)

	if rr := env.uploadFile(t, env.aliceSID, "same.txt", env.bob, []byte("from alice")); rr.Code != http.StatusOK {
		t.Fatalf("first upload failed: %d", rr.Code)
	}
	if rr := env.uploadFile(t, env.bobSID, "same.txt", env.alice, []byte("from bob")); rr.Code != http.StatusOK {
		t.Fatalf("second upload failed: %d", rr.Code)
	}

	files, _ := env.store.GetConversationFiles(env.alice, env.bob)
	if len(files) != 2 {
		t.Fatalf("Expected 2 file rows, got %d", len(files))
	}
	if files[0].StoredName == files[1].StoredName {
		t.Fatal("Expected distinct stored names")
	}

	want := map[string]string{env.alice: "from alice", env.bob: "from bob"}
	for _, f := range files {
		payload, err := env.handler.Vault.Open(f.StoredName)
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", f.StoredName, err)
		}
		data, _ := io.ReadAll(payload)
		payload.Close()
		if string(data) != want[f.SenderID] {
			t.Errorf("Payload for %s overwritten: got %q", f.SenderID, data)
		}
	}
}

func TestGetFiles(t *testing.T) {
	env := newChatEnv(t)

	env.uploadFile(t, env.aliceSID, "a.txt", env.bob, []byte("one"))
	env.uploadFile(t, env.bobSID, "b.pdf", env.alice, []byte("two"))

	req := httptest.NewRequest("GET", "/api/get_files/"+env.bob, nil)
	req = mux.SetURLVars(req, map[string]string{"receiverId": env.bob})
	rr := env.serve(env.handler.GetFiles, req, env.aliceSID)
	if rr.Code != http.StatusOK {
		t.Fatalf("get_files returned %d", rr.Code)
	}

	var views []models.FileView
	json.NewDecoder(rr.Body).Decode(&views)
	if len(views) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(views))
	}
	if views[0].Filename != "a.txt" || !views[0].IsSent {
		t.Errorf("Unexpected first entry: %+v", views[0])
	}
	if views[1].Filename != "b.pdf" || views[1].IsSent {
		t.Errorf("Unexpected second entry: %+v", views[1])
	}
}

func TestChatContext(t *testing.T) {
	env := newChatEnv(t)

	req := httptest.NewRequest("GET", "/chat/"+env.bob, nil)
	req = mux.SetURLVars(req, map[string]string{"receiverId": env.bob})
	rr := env.serve(env.handler.ChatContext, req, env.aliceSID)
	if rr.Code != http.StatusOK {
		t.Fatalf("chat context returned %d", rr.Code)
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["receiver_name"] != "bob" {
		t.Errorf("Expected receiver_name 'bob', got %q", resp["receiver_name"])
	}

	// Unknown receiver sends the caller back to the dashboard
	req = httptest.NewRequest("GET", "/chat/nobody", nil)
	req = mux.SetURLVars(req, map[string]string{"receiverId": "nobody"})
	rr = env.serve(env.handler.ChatContext, req, env.aliceSID)
	if rr.Code != http.StatusSeeOther {
		t.Errorf("Expected redirect for unknown receiver, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Expected redirect to /dashboard, got %q", loc)
	}
}
