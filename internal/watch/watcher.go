package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"notice_generator/internal/config"
	"notice_generator/internal/jobs"
)

// Watcher monitors the inbox for new TSV drops and the templates dir
// for edits, enqueuing the matching pipeline jobs.
type Watcher struct {
	cfg    config.Config
	runner *jobs.Runner
}

func New(cfg config.Config, runner *jobs.Runner) *Watcher {
	return &Watcher{cfg: cfg, runner: runner}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Println("watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
					continue
				}
				switch {
				case w.isTSV(evt.Name) && filepath.Dir(evt.Name) == filepath.Clean(w.cfg.InboxDir):
					w.enqueueIngest(ctx, evt.Name)
				case w.isTemplateFile(evt.Name):
					w.enqueueTemplateSync(ctx, evt.Name)
				}
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	if err := watcher.Add(w.cfg.InboxDir); err != nil {
		return err
	}
	return watcher.Add(w.cfg.TemplatesDir)
}

func (w *Watcher) enqueueIngest(ctx context.Context, path string) {
	name := filepath.Base(path)
	// Deterministic per file name, so duplicate fsnotify events for
	// the same drop collapse into one batch.
	batchID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	_, _ = w.runner.Enqueue(ctx, batchID, jobs.StageIngest, map[string]any{"file": name})
}

func (w *Watcher) enqueueTemplateSync(ctx context.Context, path string) {
	mtime := int64(0)
	if fi, err := os.Stat(path); err == nil {
		mtime = fi.ModTime().Unix()
	}
	_, _ = w.runner.Enqueue(ctx, "templates", jobs.StageTemplateSync, map[string]any{
		"file":  filepath.Base(path),
		"mtime": mtime,
	})
}

func (w *Watcher) isTSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".tsv")
}

func (w *Watcher) isTemplateFile(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.cfg.TemplatesDir) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Backfill enqueues ingest for TSV files already sitting in the inbox
// and one template sync pass at startup.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.cfg.InboxDir, "*.tsv"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		w.enqueueIngest(ctx, e)
	}
	w.enqueueTemplateSync(ctx, filepath.Join(w.cfg.TemplatesDir, "startup"))
	return nil
}
