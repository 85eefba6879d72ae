// Package importer loads markdown decks of translate cards from local
// directories and git repositories.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/errs"
	"github.com/conorfennell/memoryrefresh/internal/gitsource"
	"github.com/conorfennell/memoryrefresh/internal/service"
)

// Store is the part of the service the importer writes through.
type Store interface {
	EnsureTag(ctx context.Context, name string) (domain.Tag, error)
	TranslateCardExists(ctx context.Context, textToTranslate string) (bool, error)
	CreateTranslateCard(ctx context.Context, in service.CreateTranslateCard) (int64, error)
}

// GitSyncer brings a local checkout of a repository up to date.
type GitSyncer func(ctx context.Context, repoURL, localPath string, logger *zap.Logger) error

// Report summarizes an import run.
type Report struct {
	Sources int      `json:"sources"`
	Files   int      `json:"files"`
	Entries int      `json:"entries"`
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func (r *Report) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// Importer turns deck entries into cards. Entries whose text to translate
// already exists are skipped, so repeated runs are idempotent.
type Importer struct {
	store    Store
	sources  []string
	reposDir string
	gitSync  GitSyncer
	logger   *zap.Logger
}

// New returns an Importer for the given sources. Remote sources are checked
// out below reposDir.
func New(store Store, sources []string, reposDir string, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		store:    store,
		sources:  sources,
		reposDir: reposDir,
		gitSync:  gitsource.Sync,
		logger:   logger,
	}
}

// Sync imports every configured source. A failing source is recorded in
// the report and does not stop the others.
func (im *Importer) Sync(ctx context.Context) (Report, error) {
	report := Report{Errors: []string{}}
	if len(im.sources) == 0 {
		im.logger.Info("no import sources configured")
		return report, nil
	}
	im.logger.Info("starting import", zap.Int("sources", len(im.sources)))

	for _, source := range im.sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Sources++
		if err := im.ImportSource(ctx, source, &report); err != nil {
			im.logger.Error("failed to import source", zap.String("source", source), zap.Error(err))
			report.fail(fmt.Errorf("%s: %w", source, err))
		}
	}

	im.logger.Info("import complete",
		zap.Int("files", report.Files),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// ImportSource imports one local directory or git repository.
func (im *Importer) ImportSource(ctx context.Context, source string, report *Report) error {
	dir := source
	if gitsource.IsRemote(source) {
		local, err := gitsource.LocalPath(im.reposDir, source)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := im.gitSync(ctx, source, local, im.logger); err != nil {
			return err
		}
		dir = local
	}
	return im.ImportDir(ctx, dir, report)
}

// parsers maps deck file extensions to their readers.
var parsers = map[string]func(path string) ([]Entry, error){
	".md":   ParseFile,
	".xlsx": ParseSheet,
}

// ImportDir walks dir and imports every deck file in it.
func (im *Importer) ImportDir(ctx context.Context, dir string, report *Report) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		parse, ok := parsers[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		report.Files++
		entries, err := parse(path)
		if err != nil {
			report.fail(fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		for _, e := range entries {
			report.Entries++
			created, err := im.importEntry(ctx, e)
			switch {
			case err != nil:
				report.fail(fmt.Errorf("%s:%d: %w", path, e.Line, err))
			case created:
				report.Created++
			default:
				report.Skipped++
			}
		}
		return nil
	})
}

func (im *Importer) importEntry(ctx context.Context, e Entry) (bool, error) {
	exists, err := im.store.TranslateCardExists(ctx, e.TextToTranslate)
	if err != nil || exists {
		return false, err
	}

	// EnsureTag commits on its own; reject the entry before any tag exists.
	if strings.TrimSpace(e.Translation) == "" {
		return false, errs.Validation("translation", "must not be blank")
	}

	tagIDs := make([]int64, 0, len(e.Tags))
	for _, name := range e.Tags {
		tag, err := im.store.EnsureTag(ctx, name)
		if err != nil {
			return false, err
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	id, err := im.store.CreateTranslateCard(ctx, service.CreateTranslateCard{
		TextToTranslate: e.TextToTranslate,
		Translation:     e.Translation,
		TagIDs:          tagIDs,
	})
	if err != nil {
		return false, err
	}
	im.logger.Debug("imported card", zap.Int64("id", id), zap.String("text", e.TextToTranslate))
	return true, nil
}
