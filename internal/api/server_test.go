package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quizforge/quizforge/internal/engine"
	"github.com/quizforge/quizforge/internal/monitor"
	"github.com/quizforge/quizforge/internal/pdfproc"
	"github.com/quizforge/quizforge/internal/storage"
)

// fakeExtractor bypasses PDF decoding: the upload body is treated as plain
// text and chunked with the real chunker.
type fakeExtractor struct {
	proc *pdfproc.Processor
}

func (f *fakeExtractor) ExtractFromReader(r io.ReaderAt, size int64) (string, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return "", err
	}
	text := pdfproc.CleanText(string(buf))
	if text == "" {
		return "", errors.New("no extractable text")
	}
	return text, nil
}

func (f *fakeExtractor) Chunk(text string) []string { return f.proc.Chunk(text) }

type fakeEngine struct {
	response string
	err      error
	running  bool
}

func (f *fakeEngine) Chat(context.Context, string, []engine.Message) (string, error) {
	return f.response, f.err
}
func (f *fakeEngine) IsRunning(context.Context) bool               { return f.running }
func (f *fakeEngine) ListModels(context.Context) ([]string, error) { return []string{"llama3"}, nil }
func (f *fakeEngine) HasModel(context.Context, string) bool        { return true }

const testToken = "test-token"

func newTestServer(t *testing.T, eng engine.Engine) http.Handler {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewHandler(Deps{
		Store:      store,
		Engine:     eng,
		Monitor:    monitor.New(0),
		Extractor:  &fakeExtractor{proc: pdfproc.New(200, 20)},
		Token:      testToken,
		DataDir:    t.TempDir(),
		Model:      "llama3",
		MaxRetries: 1,
	})
}

func uploadRequest(t *testing.T, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "physics.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func uploadDocument(t *testing.T, h http.Handler, content string) DocumentResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, content))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var doc DocumentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return doc
}

const sampleText = `Gravity is the force that attracts objects toward one another. ` +
	`Every mass exerts gravitational pull proportional to its size.

The gravitational constant appears in Newton's law of universal gravitation. ` +
	`It was first measured by Cavendish in the eighteenth century.

Cells are the basic structural unit of all living organisms. ` +
	`They contain organelles suspended in cytoplasm.`

const modelOutput = `Q1. What force attracts objects toward one another?
A. gravity
B. magnetism
C. friction
D. tension
Correct Answer: A

Q2. Who first measured the gravitational constant?
A. Newton
B. Cavendish
C. Einstein
D. Galileo
Correct Answer: B
`

func TestUploadDocument(t *testing.T) {
	h := newTestServer(t, &fakeEngine{running: true})

	doc := uploadDocument(t, h, sampleText)
	if doc.ID == "" || doc.Filename != "physics.pdf" || doc.ChunkCount == 0 {
		t.Errorf("document = %+v", doc)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var docs []DocumentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Errorf("listed documents = %+v", docs)
	}
}

func TestUploadDocument_RequiresAuth(t *testing.T) {
	h := newTestServer(t, &fakeEngine{})

	req := uploadRequest(t, sampleText)
	req.Header.Del("Authorization")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = uploadRequest(t, sampleText)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for wrong token", rec.Code)
	}
}

func TestUploadDocument_EmptyContent(t *testing.T) {
	h := newTestServer(t, &fakeEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, "   "))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q", body.Error.Type)
	}
}

func generateBody(count int, topic string) *strings.Reader {
	return strings.NewReader(fmt.Sprintf(
		`{"question_type":"multiple_choice","requested_count":%d,"topic":%q}`, count, topic))
}

func doGenerate(t *testing.T, h http.Handler, docID string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/documents/"+docID+"/generate", body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerate(t *testing.T) {
	h := newTestServer(t, &fakeEngine{response: modelOutput})
	doc := uploadDocument(t, h, sampleText)

	rec := doGenerate(t, h, doc.ID, generateBody(2, "gravity"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID       string `json:"id"`
		Metadata struct {
			PDFFilename    string `json:"pdf_filename"`
			RequestedCount int    `json:"requested_count"`
			FilteredCount  int    `json:"filtered_count"`
		} `json:"metadata"`
		Questions []struct {
			Text          string `json:"question_text"`
			CorrectAnswer string `json:"correct_answer"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID == "" || len(resp.Questions) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Metadata.PDFFilename != "physics.pdf" || resp.Metadata.FilteredCount != 2 {
		t.Errorf("metadata = %+v", resp.Metadata)
	}

	// The run is persisted and retrievable.
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/runs/"+resp.ID, nil))
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET /runs/{id} status = %d", getRec.Code)
	}
	var stored struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored.Questions) != 2 {
		t.Errorf("stored run has %d questions, want 2", len(stored.Questions))
	}

	// And the metrics reflect it.
	metRec := httptest.NewRecorder()
	h.ServeHTTP(metRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var metrics struct {
		Total int `json:"total_questions_generated"`
	}
	if err := json.Unmarshal(metRec.Body.Bytes(), &metrics); err != nil {
		t.Fatal(err)
	}
	if metrics.Total != 2 {
		t.Errorf("total_questions_generated = %d, want 2", metrics.Total)
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	h := newTestServer(t, &fakeEngine{response: modelOutput})
	doc := uploadDocument(t, h, sampleText)

	rec := doGenerate(t, h, doc.ID, generateBody(0, ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("count 0: status = %d, want 400", rec.Code)
	}

	rec = doGenerate(t, h, doc.ID, strings.NewReader(`{"question_type":"essay","requested_count":5}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: status = %d, want 400", rec.Code)
	}
}

func TestGenerate_UnknownDocument(t *testing.T) {
	h := newTestServer(t, &fakeEngine{response: modelOutput})

	rec := doGenerate(t, h, "no-such-doc", generateBody(2, ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGenerate_ModelDown(t *testing.T) {
	h := newTestServer(t, &fakeEngine{
		err: &engine.ModelUnavailableError{Model: "llama3", Err: errors.New("connection refused")},
	})
	doc := uploadDocument(t, h, sampleText)

	rec := doGenerate(t, h, doc.ID, generateBody(2, ""))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	h := newTestServer(t, &fakeEngine{response: modelOutput})
	doc := uploadDocument(t, h, sampleText)

	for i := 0; i < 2; i++ {
		if rec := doGenerate(t, h, doc.ID, generateBody(2, "")); rec.Code != http.StatusOK {
			t.Fatalf("generate %d: status = %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?document_id="+doc.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var runs []RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.DocumentID != doc.ID || r.QuestionType != "multiple_choice" || r.FilteredCount != 2 {
			t.Errorf("run summary = %+v", r)
		}
	}
}

func TestGetRun_NotFound(t *testing.T) {
	h := newTestServer(t, &fakeEngine{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	h := newTestServer(t, &fakeEngine{response: modelOutput})
	doc := uploadDocument(t, h, sampleText)

	req := httptest.NewRequest(http.MethodDelete, "/documents/"+doc.ID, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if rec := doGenerate(t, h, doc.ID, generateBody(2, "")); rec.Code != http.StatusNotFound {
		t.Errorf("generate after delete: status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeEngine{running: true})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status       string `json:"status"`
		ModelBackend bool   `json:"model_backend"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || !body.ModelBackend {
		t.Errorf("health = %+v", body)
	}
}
