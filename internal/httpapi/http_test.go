package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"notice_generator/internal/config"
	"notice_generator/internal/generator"
	"notice_generator/internal/jobs"
	"notice_generator/internal/pipeline"
	"notice_generator/internal/store"
)

func setupTest(t *testing.T) (*http.ServeMux, *store.Store) {
	t.Helper()
	cfg := config.Load()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.WorkDir = t.TempDir()
	cfg.InboxDir = t.TempDir()
	cfg.TemplatesDir = t.TempDir()
	cfg.QueueSize = 8
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	reg := pipeline.BuildRegistry(cfg, st, func(_ context.Context, _ string, _ jobs.Stage, _ map[string]any) error { return nil })
	runner := jobs.NewRunner(cfg, st, reg, nil)
	router := NewRouter(cfg, st, runner)
	mux := http.NewServeMux()
	router.Register(mux)
	return mux, st
}

func TestGenerateEndpoint(t *testing.T) {
	mux, st := setupTest(t)
	if err := st.UpsertTemplate(context.Background(), generator.Template{
		EventType:    generator.EventObhod,
		ScenarioKey:  "obhod_1d_1slot",
		TitleNews:    "Обход дома: {ADDRESS}",
		BodyNewsHTML: "<p>{NEWS_DATETIME}</p>",
		PushTitle:    "Обход {PUSH_DAY}",
		PushBody:     "{PUSH_TIME}",
		IsActive:     true,
	}, config.Now()); err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{
		"event_type":   "obhod",
		"scenario_key": "regular",
		"input":        "1\tул. Ленина, 5\t05.06.2025\t16:00-20:00\n",
	}
	buf, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBuffer(buf))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		BatchID string             `json:"batch_id"`
		Records []generator.Record `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.BatchID == "" {
		t.Fatal("missing batch_id")
	}
	if len(resp.Records) != 1 || resp.Records[0].NewsTitle != "Обход дома: ул. Ленина, 5" {
		t.Fatalf("unexpected records: %+v", resp.Records)
	}

	// Records are persisted and retrievable by batch.
	req = httptest.NewRequest(http.MethodGet, "/api/records?batch_id="+resp.BatchID, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("records status %d", rr.Code)
	}
	var stored []generator.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Status != generator.StatusOK {
		t.Fatalf("unexpected stored records: %+v", stored)
	}
}

func TestGenerateDefaultsCancelReason(t *testing.T) {
	mux, st := setupTest(t)
	if err := st.UpsertTemplate(context.Background(), generator.Template{
		EventType:    generator.EventPiket,
		ScenarioKey:  "cancel",
		BodyNewsHTML: "<p>В связи {REASON} пикет {WHEN_WORD} не состоится.</p>",
		PushBody:     "{ADDRESS}: пикет отменён",
		Rules:        generator.Rules{RequiresReason: true},
		IsActive:     true,
	}, config.Now()); err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{
		"event_type":   "piket",
		"scenario_key": "cancel",
		"input":        "ЦАО\tул. Ленина, 5\t01.06.2025\t10.06.2025\tблагоустройство\tу подъезда 1\t05.06.2025\t16:00-20:00\n",
	}
	buf, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBuffer(buf))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Records []generator.Record `json:"records"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("expected 1 record, got %+v", resp.Records)
	}
	if resp.Records[0].Status != generator.StatusOK {
		t.Fatalf("reason default not applied: %+v", resp.Records[0])
	}
	want := "<p>В связи с погодными условиями пикет завтра не состоится.</p>"
	if resp.Records[0].NewsHTML != want {
		t.Fatalf("got %q, want %q", resp.Records[0].NewsHTML, want)
	}
}

func TestGenerateRejectsUnknownEventType(t *testing.T) {
	mux, _ := setupTest(t)
	buf := bytes.NewBufferString(`{"event_type":"kvartira","scenario_key":"regular","input":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", buf)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	mux, _ := setupTest(t)
	req := httptest.NewRequest(http.MethodGet, "/api/generate", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestOpsEnqueueEndpoint(t *testing.T) {
	mux, _ := setupTest(t)
	body := bytes.NewBufferString(`{"batch_id":"b1","stage":"TEMPLATE_SYNC","params":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/ops/jobs/enqueue", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var job store.Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if job.Stage != "TEMPLATE_SYNC" || job.Status != jobs.StatusQueued {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestTemplatesEndpoint(t *testing.T) {
	mux, st := setupTest(t)
	if err := st.UpsertTemplate(context.Background(), generator.Template{
		EventType:   generator.EventPiket,
		ScenarioKey: "piket_regular",
		IsActive:    true,
	}, config.Now()); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var list []generator.Template
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ScenarioKey != "piket_regular" {
		t.Fatalf("unexpected templates: %+v", list)
	}
}

func TestTemplateUpsertEndpoint(t *testing.T) {
	mux, st := setupTest(t)
	body := bytes.NewBufferString(`{"event_type":"obhod","scenario_key":"obhod_cancel_generic","title_news":"Отмена обхода: {ADDRESS}","is_active":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/templates", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	active, err := st.ActiveTemplates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ScenarioKey != "obhod_cancel_generic" {
		t.Fatalf("template not stored: %+v", active)
	}

	bad := bytes.NewBufferString(`{"event_type":"obhod","scenario_key":""}`)
	req = httptest.NewRequest(http.MethodPost, "/api/templates", bad)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty scenario_key, got %d", rr.Code)
	}
}

func TestGenerateWithoutPersist(t *testing.T) {
	mux, st := setupTest(t)
	buf := bytes.NewBufferString(`{"event_type":"obhod","scenario_key":"regular","input":"1\tул. Ленина, 5\t05.06.2025\t16:00-20:00\n","persist":false}`)
	req := httptest.NewRequest(http.MethodPost, "/api/generate", buf)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	batches, err := st.ListBatches(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Fatalf("persist=false should not store a batch: %+v", batches)
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux, _ := setupTest(t)
	req := httptest.NewRequest(http.MethodGet, "/ops/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux, _ := setupTest(t)
	req := httptest.NewRequest(http.MethodGet, "/ops/metrics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var snap map[string]int64
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if _, ok := snap["batches_generated"]; !ok {
		t.Fatalf("missing counter: %v", snap)
	}
}
