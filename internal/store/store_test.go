package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"notice_generator/internal/generator"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTemplateUpsertAndActiveList(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tpl := generator.Template{
		EventType:    generator.EventObhod,
		ScenarioKey:  "obhod_1d_1slot",
		Name:         "Обход, один день",
		TitleNews:    "Обход: {ADDRESS}",
		BodyNewsHTML: "<p>{DATE_LIST} {NEWS_DATETIME}</p>",
		PushTitle:    "Обход {PUSH_DAY}",
		PushBody:     "{PUSH_TIME}",
		IsActive:     true,
	}
	if err := st.UpsertTemplate(ctx, tpl, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Same pair again replaces, not duplicates.
	tpl.TitleNews = "Обход дома: {ADDRESS}"
	if err := st.UpsertTemplate(ctx, tpl, now.Add(time.Minute)); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	inactive := tpl
	inactive.ScenarioKey = "obhod_1d_2slot"
	inactive.IsActive = false
	if err := st.UpsertTemplate(ctx, inactive, now); err != nil {
		t.Fatalf("upsert inactive: %v", err)
	}

	active, err := st.ActiveTemplates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active template, got %d", len(active))
	}
	if active[0].TitleNews != "Обход дома: {ADDRESS}" {
		t.Fatalf("upsert did not replace: %q", active[0].TitleNews)
	}

	all, err := st.ListTemplates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 templates total, got %d", len(all))
	}
}

func TestTemplateRulesRoundTrip(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	tpl := generator.Template{
		EventType:   generator.EventPiket,
		ScenarioKey: "piket_regular",
		Rules:       generator.Rules{RequiresPlaceText: true, RequiresPlacePush: true},
		IsActive:    true,
	}
	if err := st.UpsertTemplate(ctx, tpl, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	active, err := st.ActiveTemplates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || !active[0].Rules.RequiresPlaceText || !active[0].Rules.RequiresPlacePush {
		t.Fatalf("rules lost in round trip: %+v", active)
	}
}

func TestBatchAndRecords(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	b := Batch{BatchID: "b1", EventType: "obhod", ScenarioKey: "obhod_1d_1slot", Source: "api:", Status: "generated", RecordCount: 2, ErrorCount: 1, CreatedAt: now, UpdatedAt: now}
	if err := st.UpsertBatch(ctx, b); err != nil {
		t.Fatal(err)
	}
	b.Status = "published"
	if err := st.UpsertBatch(ctx, b); err != nil {
		t.Fatal(err)
	}
	list, err := st.ListBatches(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Status != "published" {
		t.Fatalf("batch upsert broken: %+v", list)
	}

	recs := []generator.Record{
		{EventType: generator.EventObhod, ScenarioKey: "obhod_1d_1slot", Address: "ул. Ленина, 5", Status: generator.StatusOK, PushTitle: "t"},
		{EventType: generator.EventObhod, ScenarioKey: "obhod_1d_1slot", Address: "ул. Мира, 7", Status: generator.StatusError, ErrorText: "Нет шаблона для scenario_key=x"},
	}
	if err := st.ReplaceRecords(ctx, "b1", recs, now); err != nil {
		t.Fatal(err)
	}
	// Replace drops the old set.
	if err := st.ReplaceRecords(ctx, "b1", recs[:1], now); err != nil {
		t.Fatal(err)
	}
	got, err := st.RecordsByBatch(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Address != "ул. Ленина, 5" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestJobIdempotency(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	j := &Job{BatchID: "b1", Stage: "GENERATE", Status: "queued", IdempotencyKey: "k1", CreatedAt: now, UpdatedAt: now}
	first, err := st.InsertJobIdempotent(ctx, j)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := &Job{BatchID: "b1", Stage: "GENERATE", Status: "queued", IdempotencyKey: "k1", CreatedAt: now, UpdatedAt: now}
	second, err := st.InsertJobIdempotent(ctx, dup)
	if err != ErrConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("conflict should return existing job")
	}

	if err := st.MarkJobStarted(ctx, first.ID, now); err != nil {
		t.Fatal(err)
	}
	if err := st.MarkJobFinished(ctx, first.ID, "succeeded", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	jobsList, err := st.ListJobs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobsList) != 1 || jobsList[0].Status != "succeeded" || jobsList[0].FinishedAt == nil {
		t.Fatalf("unexpected job state: %+v", jobsList)
	}
}

func TestJobLogs(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	j, err := st.RecordJob(ctx, &Job{BatchID: "b1", Stage: "INGEST", Status: "queued", IdempotencyKey: "lk", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	for i, line := range []string{"first", "second"} {
		if err := st.AppendJobLog(ctx, j.ID, line, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	lines, err := st.JobLogs(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "first" {
		t.Fatalf("unexpected logs: %v", lines)
	}
}

func TestHealth(t *testing.T) {
	st := openTest(t)
	if err := st.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
