package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"notice_generator/internal/config"
	"notice_generator/internal/generator"
	"notice_generator/internal/jobs"
	"notice_generator/internal/metrics"
	"notice_generator/internal/notify"
	"notice_generator/internal/store"
)

// EnqueueFunc lets a stage schedule a follow-up stage without the
// registry depending on the runner directly.
type EnqueueFunc func(ctx context.Context, batchID string, stage jobs.Stage, params map[string]any) error

// BuildRegistry wires deterministic stage functions.
func BuildRegistry(cfg config.Config, st *store.Store, enqueue EnqueueFunc) jobs.Registry {
	return jobs.Registry{
		jobs.StageIngest:       ingestStage(cfg, st, enqueue),
		jobs.StageGenerate:     generateStage(cfg, st, enqueue),
		jobs.StagePublish:      publishStage(cfg, st),
		jobs.StageTemplateSync: templateSyncStage(cfg, st),
	}
}

// ParseInboxName splits "<event>__<scenario>__<label>.tsv" into its parts.
func ParseInboxName(name string) (eventType, scenarioKey, label string, err error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.Split(base, "__")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("bad inbox file name %q", filepath.Base(name))
	}
	if _, ok := generator.Scenarios[generator.EventType(parts[0])]; !ok {
		return "", "", "", fmt.Errorf("unknown event type %q", parts[0])
	}
	return parts[0], parts[1], parts[2], nil
}

func ingestStage(cfg config.Config, st *store.Store, enqueue EnqueueFunc) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, batchID string, params map[string]any) error {
		file, _ := params["file"].(string)
		eventType, scenarioKey, _, err := ParseInboxName(file)
		if err != nil {
			return err
		}
		src := filepath.Join(cfg.InboxDir, file)
		dstDir := filepath.Join(cfg.WorkDir, batchID)
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return err
		}
		dst := filepath.Join(dstDir, "input.tsv")
		if err := moveFile(src, dst); err != nil {
			return err
		}
		now := config.Now()
		if err := st.UpsertBatch(ctx, store.Batch{
			BatchID:     batchID,
			EventType:   eventType,
			ScenarioKey: scenarioKey,
			Source:      file,
			Status:      "ingested",
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		exec.Logf(paramsInt64(params, "job_id"), fmt.Sprintf("ingest moved %s", dst))
		return enqueue(ctx, batchID, jobs.StageGenerate, map[string]any{
			"event_type":   eventType,
			"scenario_key": scenarioKey,
		})
	}
}

func generateStage(cfg config.Config, st *store.Store, enqueue EnqueueFunc) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, batchID string, params map[string]any) error {
		eventType, _ := params["event_type"].(string)
		scenarioKey, _ := params["scenario_key"].(string)
		input, err := os.ReadFile(filepath.Join(cfg.WorkDir, batchID, "input.tsv"))
		if err != nil {
			return err
		}
		templates, err := st.ActiveTemplates(ctx)
		if err != nil {
			return err
		}
		res := generator.Generate(generator.Request{
			EventType:   generator.EventType(eventType),
			ScenarioKey: scenarioKey,
			Input:       string(input),
		}, templates)
		for _, pe := range res.ParseErrors {
			exec.Logf(paramsInt64(params, "job_id"), "parse: "+pe)
		}
		now := config.Now()
		if err := st.ReplaceRecords(ctx, batchID, res.Records, now); err != nil {
			return err
		}
		okCount, errCount := 0, 0
		for _, r := range res.Records {
			if r.Status == generator.StatusOK {
				okCount++
			} else {
				errCount++
			}
		}
		status := "generated"
		if len(res.Records) == 0 || errCount > 0 {
			status = "generated_with_errors"
		}
		if err := st.UpsertBatch(ctx, store.Batch{
			BatchID:     batchID,
			EventType:   eventType,
			ScenarioKey: scenarioKey,
			Status:      status,
			RecordCount: len(res.Records),
			ErrorCount:  errCount,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		metrics.IncBatches()
		metrics.AddRecordsOK(okCount)
		metrics.AddRecordsFailed(errCount)
		exec.Logf(paramsInt64(params, "job_id"), fmt.Sprintf("generated %d records, %d errors", len(res.Records), errCount))
		if cfg.PublishPush && okCount > 0 {
			return enqueue(ctx, batchID, jobs.StagePublish, map[string]any{})
		}
		return nil
	}
}

func publishStage(cfg config.Config, st *store.Store) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, batchID string, params map[string]any) error {
		recs, err := st.RecordsByBatch(ctx, batchID)
		if err != nil {
			return err
		}
		sent := 0
		for _, r := range recs {
			if r.Status != generator.StatusOK || r.PushTitle == "" {
				continue
			}
			if err := notify.SendWebhook(cfg, notify.Push{
				BatchID: batchID,
				Address: r.Address,
				Title:   r.PushTitle,
				Body:    r.PushBody,
			}); err != nil {
				return err
			}
			sent++
		}
		exec.Logf(paramsInt64(params, "job_id"), fmt.Sprintf("published %d pushes", sent))
		return nil
	}
}

func templateSyncStage(cfg config.Config, st *store.Store) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, batchID string, params map[string]any) error {
		paths, err := filepath.Glob(filepath.Join(cfg.TemplatesDir, "*.yaml"))
		if err != nil {
			return err
		}
		more, _ := filepath.Glob(filepath.Join(cfg.TemplatesDir, "*.yml"))
		paths = append(paths, more...)
		count := 0
		for _, p := range paths {
			raw, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			var tpls []generator.Template
			if err := yaml.Unmarshal(raw, &tpls); err != nil {
				return fmt.Errorf("parse %s: %w", filepath.Base(p), err)
			}
			for _, t := range tpls {
				if err := st.UpsertTemplate(ctx, t, config.Now()); err != nil {
					return err
				}
				count++
			}
		}
		exec.Logf(paramsInt64(params, "job_id"), fmt.Sprintf("synced %d templates", count))
		return nil
	}
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return os.Remove(src)
}

func paramsInt64(m map[string]any, key string) int64 {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int64(t)
		case int64:
			return t
		case int:
			return int64(t)
		}
	}
	return 0
}
