package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/config"
	"github.com/Veraticus/gradeflow/internal/model"
	"github.com/Veraticus/gradeflow/internal/rubric"
	"github.com/Veraticus/gradeflow/internal/service"
	"github.com/Veraticus/gradeflow/internal/storage"
)

// envKeyReplacer maps nested keys such as llm.api_key to GRADE_LLM_API_KEY.
var envKeyReplacer = strings.NewReplacer(".", "_")

// openStorage opens the configured store without touching its schema.
func openStorage(ctx context.Context, cfg config.DatabaseConfig) (service.Storage, error) {
	if cfg.Driver == config.DriverPostgres {
		store, err := storage.NewPostgresStorage(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := storage.NewSQLiteStorage(cfg.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// initStorage opens the configured store and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.DatabaseConfig) (service.Storage, error) {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// loadRubric resolves ref as a rubric file on disk, falling back to a
// stored rubric id. The second return value is the stored id, if any.
func loadRubric(ctx context.Context, store service.Storage, ref string) (model.NormalizedRubric, string, error) {
	data, err := os.ReadFile(config.ExpandPath(ref))
	if err == nil {
		return rubric.NormalizeJSON(data), "", nil
	}
	if !os.IsNotExist(err) {
		return model.NormalizedRubric{}, "", fmt.Errorf("failed to read rubric: %w", err)
	}

	stored, err := store.GetRubric(ctx, ref)
	if err != nil {
		return model.NormalizedRubric{}, "", common.NewUserError(
			fmt.Sprintf("Rubric %q is neither a file nor a stored rubric id", ref), err)
	}
	return *stored, ref, nil
}

// loadTests reads transcribed student tests from JSON files. Directories
// contribute every *.json file they hold, in name order.
func loadTests(paths []string) ([]model.StudentTest, error) {
	var files []string
	for _, p := range paths {
		p = config.ExpandPath(p)
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read test input: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}

	tests := make([]model.StudentTest, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		var test model.StudentTest
		if err := json.Unmarshal(data, &test); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f, err)
		}
		if test.Filename == "" {
			test.Filename = filepath.Base(f)
		}
		if test.StudentName == "" {
			test.StudentName = strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		}
		tests = append(tests, test)
	}

	return tests, nil
}
