package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"legaladvisor/internal/analysis"
	"legaladvisor/internal/auth"
	"legaladvisor/internal/config"
	"legaladvisor/internal/consultation"
	"legaladvisor/internal/i18n"
	"legaladvisor/internal/models"
	"legaladvisor/internal/service/account"
	"legaladvisor/internal/storage"
	"legaladvisor/internal/upload"
	"legaladvisor/internal/worker"
)

type testServer struct {
	router  *gin.Engine
	db      *sql.DB
	handler *Handler
	manager *consultation.Manager
}

type testUser struct {
	id      int64
	headers map[string]string
}

func (u testUser) path(format string, args ...any) string {
	return fmt.Sprintf("/api/users/%d", u.id) + fmt.Sprintf(format, args...)
}

func TestEndToEndConsultationEnglish(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, map[string]string{"Accept-Language": "en-US,en;q=0.9"})

	ws := openTestWorkspace(t, srv.router, user, "chat")
	if ws.Locale != models.LocaleEnglish {
		t.Fatalf("expected english workspace from Accept-Language, got %s", ws.Locale)
	}

	query := "Can I terminate my lease early?"
	resp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/submit", ws.ID),
		map[string]string{"query_text": query}, user.headers)
	assertStatus(t, resp, http.StatusAccepted)
	var accepted struct {
		Message models.ConversationMessage `json:"message"`
	}
	decodeJSON(t, resp.Body.Bytes(), &accepted)
	if accepted.Message.Role != models.RoleUser || accepted.Message.Text != query {
		t.Fatalf("unexpected optimistic message %+v", accepted.Message)
	}

	messages := waitForMessages(t, srv.router, user, ws.ID, 2)
	if messages[0].Status != models.StatusConfirmed {
		t.Fatalf("user message should be confirmed, got %s", messages[0].Status)
	}
	bot := messages[1]
	if bot.Role != models.RoleBot || bot.ConsultationID == "" {
		t.Fatalf("unexpected bot message %+v", bot)
	}
	if !strings.Contains(bot.Text, query) || !strings.HasSuffix(bot.Text, i18n.T(models.LocaleEnglish, i18n.ResponseDisclaimer)) {
		t.Fatalf("bot reply should echo the query and end with the disclaimer: %q", bot.Text)
	}

	listResp := doJSONRequest(t, srv.router, http.MethodGet, user.path("/consultations"), nil, user.headers)
	assertStatus(t, listResp, http.StatusOK)
	var list struct {
		Consultations []models.Consultation `json:"consultations"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &list)
	if len(list.Consultations) != 1 {
		t.Fatalf("expected one stored consultation, got %d", len(list.Consultations))
	}
	rec := list.Consultations[0]
	if rec.ID != bot.ConsultationID || rec.QueryText != query || rec.Type != models.ConsultationChat {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ConfidenceScore != models.DefaultConfidenceScore || len(rec.UploadedFiles) != 0 {
		t.Fatalf("unexpected score or files %+v", rec)
	}

	fbResp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/consultations/%s/feedback", rec.ID),
		map[string]int{"value": 1}, user.headers)
	assertStatus(t, fbResp, http.StatusNoContent)

	badResp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/consultations/%s/feedback", rec.ID),
		map[string]int{"value": 5}, user.headers)
	assertStatus(t, badResp, http.StatusBadRequest)

	getResp := doJSONRequest(t, srv.router, http.MethodGet, user.path("/consultations/%s", rec.ID), nil, user.headers)
	assertStatus(t, getResp, http.StatusOK)
	var stored models.Consultation
	decodeJSON(t, getResp.Body.Bytes(), &stored)
	if stored.Feedback != models.FeedbackPositive || stored.QueryText != query || stored.AIResponse != rec.AIResponse {
		t.Fatalf("feedback should change only the rating, got %+v", stored)
	}

	wsFeedback := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/feedback", ws.ID),
		map[string]any{"consultation_id": rec.ID, "value": -1}, user.headers)
	assertStatus(t, wsFeedback, http.StatusNoContent)
	notes := listNotifications(t, srv.router, user, ws.ID)
	last := notes[len(notes)-1]
	if last.Title != i18n.T(models.LocaleEnglish, i18n.FeedbackSavedTitle) {
		t.Fatalf("expected feedback notification, got %+v", last)
	}
}

func TestArabicSubmitClearsFilesAndDraft(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, user, "chat")
	if ws.Locale != models.LocaleArabic {
		t.Fatalf("default locale should be arabic, got %s", ws.Locale)
	}

	uploadResp := uploadFiles(t, srv.router, user, ws.ID, map[string]string{"عقد.txt": "نص العقد"})
	assertStatus(t, uploadResp, http.StatusCreated)

	query := "ما هي شروط عقد البيع؟"
	draftResp := doJSONRequest(t, srv.router, http.MethodPut, user.path("/workspaces/%s/draft", ws.ID),
		map[string]string{"text": query}, user.headers)
	assertStatus(t, draftResp, http.StatusNoContent)

	// an empty body submits the saved draft
	resp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/submit", ws.ID), nil, user.headers)
	assertStatus(t, resp, http.StatusAccepted)

	messages := waitForMessages(t, srv.router, user, ws.ID, 2)
	if messages[0].Text != query || len(messages[0].Files) != 1 {
		t.Fatalf("unexpected user message %+v", messages[0])
	}
	if !strings.HasSuffix(messages[1].Text, i18n.T(models.LocaleArabic, i18n.ResponseDisclaimer)) {
		t.Fatalf("bot reply should carry the arabic disclaimer: %q", messages[1].Text)
	}

	snap := getWorkspace(t, srv.router, user, ws.ID)
	if snap.Draft != "" || len(snap.Files) != 0 {
		t.Fatalf("draft and files should be cleared, got draft=%q files=%d", snap.Draft, len(snap.Files))
	}
}

func TestSubmitBlankIsNoop(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, user, "chat")

	resp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/submit", ws.ID),
		map[string]string{"query_text": "   "}, user.headers)
	assertStatus(t, resp, http.StatusNoContent)
	if msgs := listMessages(t, srv.router, user, ws.ID); len(msgs) != 0 {
		t.Fatalf("blank submit must not append messages, got %d", len(msgs))
	}
}

func TestUploadLimitPreviewAndAnalysis(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, map[string]string{"Accept-Language": "en"})
	ws := openTestWorkspace(t, srv.router, user, "document_analysis")
	if ws.MaxFiles != 3 {
		t.Fatalf("document workspaces allow 3 files, got %d", ws.MaxFiles)
	}

	resp := uploadFiles(t, srv.router, user, ws.ID, map[string]string{"a.txt": "alpha", "b.txt": "bravo"})
	assertStatus(t, resp, http.StatusCreated)
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeJSON(t, resp.Body.Bytes(), &uploaded)
	if len(uploaded.Files) != 2 {
		t.Fatalf("expected two files, got %d", len(uploaded.Files))
	}

	file := uploaded.Files[0]
	preview := doJSONRequest(t, srv.router, http.MethodGet, file.PreviewURL, nil, nil)
	assertStatus(t, preview, http.StatusOK)
	if body := preview.Body.String(); body != "alpha" && body != "bravo" {
		t.Fatalf("unexpected preview body %q", body)
	}

	over := uploadFiles(t, srv.router, user, ws.ID, map[string]string{"c.txt": "charlie", "d.txt": "delta"})
	assertStatus(t, over, http.StatusBadRequest)
	if snap := getWorkspace(t, srv.router, user, ws.ID); len(snap.Files) != 2 {
		t.Fatalf("rejected batch must not be partially added, got %d files", len(snap.Files))
	}
	notes := listNotifications(t, srv.router, user, ws.ID)
	if last := notes[len(notes)-1]; last.Variant != models.VariantDestructive || last.Description != "You can upload at most 3 files" {
		t.Fatalf("unexpected limit notification %+v", last)
	}

	analyzeResp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/files/%s/analysis", ws.ID, file.ID), nil, user.headers)
	assertStatus(t, analyzeResp, http.StatusOK)
	var result models.AnalysisResult
	decodeJSON(t, analyzeResp.Body.Bytes(), &result)
	if result.Title != "Contract Analysis" && result.Title != "Lawsuit Document Analysis" {
		t.Fatalf("unexpected analysis title %q", result.Title)
	}

	for i := 0; i < 2; i++ {
		del := doJSONRequest(t, srv.router, http.MethodDelete, user.path("/workspaces/%s/files/%s", ws.ID, file.ID), nil, user.headers)
		assertStatus(t, del, http.StatusNoContent)
	}
	gone := doJSONRequest(t, srv.router, http.MethodGet, file.PreviewURL, nil, nil)
	assertStatus(t, gone, http.StatusNotFound)

	missing := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/files/%s/analysis", ws.ID, file.ID), nil, user.headers)
	assertStatus(t, missing, http.StatusNotFound)

	srv.handler.maxFileBytes = 8
	big := uploadFiles(t, srv.router, user, ws.ID, map[string]string{"big.txt": strings.Repeat("x", 64)})
	assertStatus(t, big, http.StatusRequestEntityTooLarge)
}

func TestPreviewRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/previews/not-a-token", nil, nil)
	assertStatus(t, resp, http.StatusNotFound)
}

func TestWorkspaceIsolation(t *testing.T) {
	srv := newTestServer(t)
	alice := registerAndLogin(t, srv.router, nil)
	bob := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, alice, "chat")

	mismatch := doJSONRequest(t, srv.router, http.MethodGet, alice.path("/workspaces/%s", ws.ID), nil, bob.headers)
	assertStatus(t, mismatch, http.StatusForbidden)

	foreign := doJSONRequest(t, srv.router, http.MethodGet, bob.path("/workspaces/%s", ws.ID), nil, bob.headers)
	assertStatus(t, foreign, http.StatusNotFound)

	unknown := doJSONRequest(t, srv.router, http.MethodPost, alice.path("/workspaces"), map[string]string{"type": "voucher"}, alice.headers)
	assertStatus(t, unknown, http.StatusBadRequest)

	noAuth := doJSONRequest(t, srv.router, http.MethodGet, alice.path("/workspaces"), nil, nil)
	assertStatus(t, noAuth, http.StatusUnauthorized)
}

func TestFeedbackOnForeignConsultationIsRejected(t *testing.T) {
	srv := newTestServer(t)
	alice := registerAndLogin(t, srv.router, map[string]string{"Accept-Language": "en"})
	bob := registerAndLogin(t, srv.router, map[string]string{"Accept-Language": "en"})
	aliceWS := openTestWorkspace(t, srv.router, alice, "chat")
	bobWS := openTestWorkspace(t, srv.router, bob, "chat")

	resp := doJSONRequest(t, srv.router, http.MethodPost, alice.path("/workspaces/%s/submit", aliceWS.ID),
		map[string]string{"query_text": "hello"}, alice.headers)
	assertStatus(t, resp, http.StatusAccepted)
	cid := waitForMessages(t, srv.router, alice, aliceWS.ID, 2)[1].ConsultationID
	if cid == "" {
		t.Fatalf("expected a consultation id on the reply")
	}

	direct := doJSONRequest(t, srv.router, http.MethodPost, bob.path("/consultations/%s/feedback", cid),
		map[string]int{"value": -1}, bob.headers)
	assertStatus(t, direct, http.StatusNotFound)

	viaWorkspace := doJSONRequest(t, srv.router, http.MethodPost, bob.path("/workspaces/%s/feedback", bobWS.ID),
		map[string]any{"consultation_id": cid, "value": -1}, bob.headers)
	assertStatus(t, viaWorkspace, http.StatusNotFound)

	getResp := doJSONRequest(t, srv.router, http.MethodGet, alice.path("/consultations/%s", cid), nil, alice.headers)
	assertStatus(t, getResp, http.StatusOK)
	var stored models.Consultation
	decodeJSON(t, getResp.Body.Bytes(), &stored)
	if stored.Feedback != models.FeedbackNone {
		t.Fatalf("another user changed the rating to %d", stored.Feedback)
	}

	own := doJSONRequest(t, srv.router, http.MethodPost, alice.path("/workspaces/%s/feedback", aliceWS.ID),
		map[string]any{"consultation_id": cid, "value": 1}, alice.headers)
	assertStatus(t, own, http.StatusNoContent)

	blank := doJSONRequest(t, srv.router, http.MethodPost, alice.path("/workspaces/%s/feedback", aliceWS.ID),
		map[string]any{"consultation_id": " ", "value": 1}, alice.headers)
	assertStatus(t, blank, http.StatusBadRequest)
}

type busyRunner struct{}

func (busyRunner) Submit(worker.Job) error {
	return worker.ErrDispatcherBusy
}

func TestSubmitBusyReturnsFailedMessage(t *testing.T) {
	srv := newTestServerWithRunner(t, busyRunner{})
	user := registerAndLogin(t, srv.router, map[string]string{"Accept-Language": "en"})
	ws := openTestWorkspace(t, srv.router, user, "chat")

	resp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/submit", ws.ID),
		map[string]string{"query_text": "hello"}, user.headers)
	assertStatus(t, resp, http.StatusTooManyRequests)
	var body struct {
		Message models.ConversationMessage `json:"message"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Message.Status != models.StatusFailed {
		t.Fatalf("response should carry the failed message, got %s", body.Message.Status)
	}
	msgs := listMessages(t, srv.router, user, ws.ID)
	if len(msgs) != 1 || msgs[0].ID != body.Message.ID || msgs[0].Status != models.StatusFailed {
		t.Fatalf("conversation disagrees with the response: %+v", msgs)
	}
}

func TestPreviewHeadersForUntrustedContent(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, user, "chat")

	resp := uploadFiles(t, srv.router, user, ws.ID, map[string]string{
		"x.pdf":   "<html><script>alert(document.cookie)</script></html>",
		"a.txt":   "alpha",
		"img.png": "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR",
	})
	assertStatus(t, resp, http.StatusCreated)
	var uploaded struct {
		Files []models.UploadedFile `json:"files"`
	}
	decodeJSON(t, resp.Body.Bytes(), &uploaded)

	byName := map[string]models.UploadedFile{}
	for _, f := range uploaded.Files {
		byName[f.Name] = f
	}
	cases := []struct {
		name        string
		contentType string
		disposition string
	}{
		{"x.pdf", "application/octet-stream", "attachment"},
		{"a.txt", "text/plain; charset=utf-8", "inline"},
		{"img.png", "image/png", "inline"},
	}
	for _, tc := range cases {
		f, ok := byName[tc.name]
		if !ok {
			t.Fatalf("missing uploaded file %s", tc.name)
		}
		preview := doJSONRequest(t, srv.router, http.MethodGet, f.PreviewURL, nil, nil)
		assertStatus(t, preview, http.StatusOK)
		if got := preview.Header().Get("Content-Type"); got != tc.contentType {
			t.Fatalf("%s: content type %q, want %q", tc.name, got, tc.contentType)
		}
		if got := preview.Header().Get("Content-Disposition"); !strings.HasPrefix(got, tc.disposition+";") {
			t.Fatalf("%s: disposition %q, want %s", tc.name, got, tc.disposition)
		}
		if got := preview.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("%s: missing nosniff, got %q", tc.name, got)
		}
	}
}

func TestSettingsFollowIntoWorkspaces(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, user, "chat")

	getResp := doJSONRequest(t, srv.router, http.MethodGet, user.path("/settings"), nil, user.headers)
	assertStatus(t, getResp, http.StatusOK)
	var settings models.Settings
	decodeJSON(t, getResp.Body.Bytes(), &settings)
	if settings.Locale != models.LocaleArabic || settings.Theme != models.ThemeLight {
		t.Fatalf("unexpected default settings %+v", settings)
	}

	bad := doJSONRequest(t, srv.router, http.MethodPut, user.path("/settings"), map[string]string{"locale": "fr"}, user.headers)
	assertStatus(t, bad, http.StatusBadRequest)

	ok := doJSONRequest(t, srv.router, http.MethodPut, user.path("/settings"),
		map[string]string{"locale": "en", "theme": "dark"}, user.headers)
	assertStatus(t, ok, http.StatusOK)
	decodeJSON(t, ok.Body.Bytes(), &settings)
	if settings.Locale != models.LocaleEnglish || settings.Theme != models.ThemeDark {
		t.Fatalf("settings not updated: %+v", settings)
	}
	if snap := getWorkspace(t, srv.router, user, ws.ID); snap.Locale != models.LocaleEnglish {
		t.Fatalf("open workspace should follow the new locale, got %s", snap.Locale)
	}
}

func TestLogoutClosesWorkspaces(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, user, "chat")
	w, err := srv.manager.Get(user.id, ws.ID)
	if err != nil {
		t.Fatalf("workspace lookup: %v", err)
	}

	logout := doJSONRequest(t, srv.router, http.MethodPost, user.path("/logout"), nil, user.headers)
	assertStatus(t, logout, http.StatusNoContent)
	if !w.Closed() {
		t.Fatalf("logout should close the user's workspaces")
	}
	again := doJSONRequest(t, srv.router, http.MethodGet, user.path("/workspaces"), nil, user.headers)
	assertStatus(t, again, http.StatusUnauthorized)
}

func TestDeleteUserKeepsConsultations(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, nil)
	ws := openTestWorkspace(t, srv.router, user, "chat")
	resp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/submit", ws.ID),
		map[string]string{"query_text": "سؤال"}, user.headers)
	assertStatus(t, resp, http.StatusAccepted)
	msgs := waitForMessages(t, srv.router, user, ws.ID, 2)

	del := doJSONRequest(t, srv.router, http.MethodDelete, user.path(""), nil, user.headers)
	assertStatus(t, del, http.StatusNoContent)

	var owner sql.NullInt64
	if err := srv.db.QueryRow(`SELECT user_id FROM consultations WHERE id = ?`, msgs[1].ConsultationID).Scan(&owner); err != nil {
		t.Fatalf("consultation should survive user deletion: %v", err)
	}
	if owner.Valid {
		t.Fatalf("orphaned consultation should have a null owner, got %d", owner.Int64)
	}
}

func TestEventStream(t *testing.T) {
	srv := newTestServer(t)
	user := registerAndLogin(t, srv.router, map[string]string{"Accept-Language": "en"})
	ws := openTestWorkspace(t, srv.router, user, "chat")

	rec := newStreamRecorder()
	req := httptest.NewRequest(http.MethodGet, user.path("/workspaces/%s/events", ws.ID), nil)
	for k, v := range user.headers {
		req.Header.Set(k, v)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.router.ServeHTTP(rec, req)
	}()
	select {
	case <-rec.flushed:
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot event received")
	}

	resp := doJSONRequest(t, srv.router, http.MethodPost, user.path("/workspaces/%s/submit", ws.ID),
		map[string]string{"query_text": "hello"}, user.headers)
	assertStatus(t, resp, http.StatusAccepted)
	waitForMessages(t, srv.router, user, ws.ID, 2)

	closeResp := doJSONRequest(t, srv.router, http.MethodDelete, user.path("/workspaces/%s", ws.ID), nil, user.headers)
	assertStatus(t, closeResp, http.StatusNoContent)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not end after the workspace closed")
	}

	events := parseSSE(t, rec.body())
	if len(events) == 0 || events[0].Name != "snapshot" {
		t.Fatalf("expected a leading snapshot event, got %+v", events)
	}
	if events[len(events)-1].Name != "closed" {
		t.Fatalf("expected a trailing closed event, got %s", events[len(events)-1].Name)
	}
	var botSeen bool
	for _, evt := range events {
		if evt.Name != string(consultation.EventMessage) {
			continue
		}
		var payload consultation.Event
		decodeJSON(t, []byte(evt.Data), &payload)
		if payload.Message != nil && payload.Message.Role == models.RoleBot {
			botSeen = true
		}
	}
	if !botSeen {
		t.Fatalf("bot reply was not streamed: %+v", events)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	assertStatus(t, doJSONRequest(t, srv.router, http.MethodGet, "/health", nil, nil), http.StatusOK)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/metrics", nil, nil)
	assertStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Body.String(), "api_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
	if resp.Header().Get(correlationHeader) == "" {
		t.Fatalf("expected a correlation id header")
	}
}

type sseEvent struct {
	Name string
	Data string
}

func parseSSE(t *testing.T, payload string) []sseEvent {
	t.Helper()
	if payload == "" {
		return nil
	}
	chunks := strings.Split(payload, "\n\n")
	var events []sseEvent
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" || strings.HasPrefix(chunk, ":") {
			continue
		}
		var evt sseEvent
		for _, line := range strings.Split(chunk, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				evt.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if evt.Data == "" {
					evt.Data = data
				} else {
					evt.Data += "\n" + data
				}
			}
		}
		events = append(events, evt)
	}
	return events
}

// streamRecorder lets a test read an SSE body while the handler is still writing.
type streamRecorder struct {
	*httptest.ResponseRecorder
	mu      sync.Mutex
	flushed chan struct{}
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), flushed: make(chan struct{}, 1)}
}

func (r *streamRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *streamRecorder) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

func (r *streamRecorder) Flush() {
	r.mu.Lock()
	r.ResponseRecorder.Flush()
	r.mu.Unlock()
	select {
	case r.flushed <- struct{}{}:
	default:
	}
}

func (r *streamRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithRunner(t, nil)
}

// newTestServerWithRunner swaps the worker dispatcher for runner when it is not nil.
func newTestServerWithRunner(t *testing.T, runner consultation.Runner) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	authSvc := auth.NewService(db, nil, time.Hour)
	accounts := account.NewService(db, models.Settings{Locale: models.LocaleArabic, Theme: models.ThemeLight})
	store := storage.NewConsultationStore(db, nil, nil)
	feedback := consultation.NewFeedbackRecorder(store, nil, nil)

	if runner == nil {
		dispatcher := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})
		t.Cleanup(dispatcher.Stop)
		runner = dispatcher
	}

	previews, err := upload.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("preview store: %v", err)
	}
	signer := upload.NewURLSigner("test-secret", time.Hour, "")
	manager := consultation.NewManager(consultation.Deps{
		Backend:  consultation.NewBackend(consultation.TemplateResponder{}, store, nil, nil),
		Runner:   runner,
		Feedback: feedback,
		Analyzer: analysis.NewSimulator(),
		Previews: previews,
		Signer:   signer,
	}, consultation.ManagerConfig{MaxFilesChat: 5, MaxFilesDocument: 3})
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	handler := NewHandler(Deps{
		Accounts:      accounts,
		Auth:          authSvc,
		Workspaces:    manager,
		Consultations: store,
		Feedback:      feedback,
		Previews:      previews,
		Signer:        signer,
	})
	return &testServer{
		router:  NewRouter(handler, nil, nil),
		db:      db,
		handler: handler,
		manager: manager,
	}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func uploadFiles(t *testing.T, router *gin.Engine, user testUser, workspaceID string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := io.WriteString(part, content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, user.path("/workspaces/%s/files", workspaceID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range user.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d (want %d), body: %s", rec.Code, want, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine, headers map[string]string) testUser {
	t.Helper()
	email := fmt.Sprintf("tester_%d@example.com", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"email":    email,
		"password": password,
	}, headers)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token after login")
	}
	return testUser{
		id:      regBody.ID,
		headers: map[string]string{"Authorization": fmt.Sprintf("Bearer %s", loginBody.AuthToken)},
	}
}

func openTestWorkspace(t *testing.T, router *gin.Engine, user testUser, kind string) consultation.Snapshot {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost, user.path("/workspaces"), map[string]string{"type": kind}, user.headers)
	assertStatus(t, resp, http.StatusCreated)
	var snap consultation.Snapshot
	decodeJSON(t, resp.Body.Bytes(), &snap)
	if snap.ID == "" {
		t.Fatalf("expected workspace id")
	}
	return snap
}

func getWorkspace(t *testing.T, router *gin.Engine, user testUser, id string) consultation.Snapshot {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodGet, user.path("/workspaces/%s", id), nil, user.headers)
	assertStatus(t, resp, http.StatusOK)
	var snap consultation.Snapshot
	decodeJSON(t, resp.Body.Bytes(), &snap)
	return snap
}

func listMessages(t *testing.T, router *gin.Engine, user testUser, id string) []models.ConversationMessage {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodGet, user.path("/workspaces/%s/messages", id), nil, user.headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Messages []models.ConversationMessage `json:"messages"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	return body.Messages
}

func listNotifications(t *testing.T, router *gin.Engine, user testUser, id string) []models.Notification {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodGet, user.path("/workspaces/%s/notifications", id), nil, user.headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if len(body.Notifications) == 0 {
		t.Fatalf("expected notifications")
	}
	return body.Notifications
}

// waitForMessages polls until the bot reply lands and the user message is settled.
func waitForMessages(t *testing.T, router *gin.Engine, user testUser, id string, n int) []models.ConversationMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msgs := listMessages(t, router, user, id)
		if len(msgs) >= n && msgs[0].Status != models.StatusPending {
			return msgs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	return nil
}
