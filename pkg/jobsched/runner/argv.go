// Package runner implements JobRunner: it turns a pipelineConfig into a
// pipeline child-process invocation, collects the outcome, and emits
// exactly one terminal event per firing (§4.5).
package runner

import (
	"fmt"

	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// PipelineDefaults are the config-supplied defaults the §6 argv mapping
// table compares against; a flag is only emitted when the job's
// pipelineConfig differs from these.
type PipelineDefaults struct {
	DataDir           string
	StoragePath       string
	OutputDir         string
	CollectionName    string
	EmbeddingModel    string
	DataDirPattern    string
	BlogBaseURL       string
	BaseURL           string
	ChunkSize         int64
	ChunkOverlap      int64
	BatchSize         int64
	MaxBackupFiles    int64
	ChecksumAlgorithm string
}

// BuildArgv translates the recognized pipelineConfig keys into the
// command-line flags from §6's mapping table, against defaults, emitting
// only flags that differ from the default to keep argv minimal. Unknown
// keys are ignored here (they still round-trip through export/import
// verbatim — see package value).
func BuildArgv(cfg value.Map, defaults PipelineDefaults) []string {
	var argv []string

	if b, ok := cfg["force_recreate"].Bool(); ok && b {
		argv = append(argv, "--force-recreate")
	}

	// Every scheduled firing runs with --ci regardless of pipelineConfig.
	argv = append(argv, "--ci")

	if b, ok := cfg["dry_run"].Bool(); ok && b {
		argv = append(argv, "--dry-run")
	}

	if mode, ok := cfg["incremental_mode"].String(); ok {
		switch mode {
		case "incremental":
			argv = append(argv, "--incremental")
		case "incremental_only":
			argv = append(argv, "--incremental-only")
		case "incremental_with_fallback":
			argv = append(argv, "--incremental-with-fallback")
		case "auto", "":
			// Default; no flag.
		}
	}

	argv = appendStringFlag(argv, cfg, "data_dir", "--data-dir", defaults.DataDir)
	argv = appendStringFlag(argv, cfg, "storage_path", "--vector-storage-path", defaults.StoragePath)
	argv = appendStringFlag(argv, cfg, "output_dir", "--output-dir", defaults.OutputDir)
	argv = appendStringFlag(argv, cfg, "collection_name", "--collection-name", defaults.CollectionName)
	argv = appendStringFlag(argv, cfg, "embedding_model", "--embedding-model", defaults.EmbeddingModel)
	argv = appendStringFlag(argv, cfg, "data_dir_pattern", "--data-dir-pattern", defaults.DataDirPattern)
	argv = appendStringFlag(argv, cfg, "blog_base_url", "--blog-base-url", defaults.BlogBaseURL)
	argv = appendStringFlag(argv, cfg, "base_url", "--base-url", defaults.BaseURL)

	if b, ok := cfg["use_chunking"].Bool(); ok && !b {
		argv = append(argv, "--no-chunking")
	}

	argv = appendIntFlag(argv, cfg, "chunk_size", "--chunk-size", defaults.ChunkSize)
	argv = appendIntFlag(argv, cfg, "chunk_overlap", "--chunk-overlap", defaults.ChunkOverlap)

	if b, ok := cfg["should_save_stats"].Bool(); ok && !b {
		argv = append(argv, "--no-save-stats")
	}

	argv = appendIntFlag(argv, cfg, "batch_size", "--batch-size", defaults.BatchSize)

	if b, ok := cfg["enable_batch_processing"].Bool(); ok && !b {
		argv = append(argv, "--disable-batch-processing")
	}
	if b, ok := cfg["enable_performance_monitoring"].Bool(); ok && !b {
		argv = append(argv, "--disable-performance-monitoring")
	}
	if b, ok := cfg["adaptive_chunking"].Bool(); ok && !b {
		argv = append(argv, "--disable-adaptive-chunking")
	}

	argv = appendIntFlag(argv, cfg, "max_backup_files", "--max-backup-files", defaults.MaxBackupFiles)
	argv = appendStringFlag(argv, cfg, "checksum_algorithm", "--checksum-algorithm", defaults.ChecksumAlgorithm)

	if p, ok := cfg["metadata_csv_path"].String(); ok && p != "" {
		argv = append(argv, "--metadata-file", p)
	}

	if b, ok := cfg["health_check"].Bool(); ok && b {
		argv = append(argv, "--health-check")
	}
	if b, ok := cfg["health_check_only"].Bool(); ok && b {
		argv = append(argv, "--health-check-only")
	}

	return argv
}

func appendStringFlag(argv []string, cfg value.Map, key, flag, def string) []string {
	v, ok := cfg[key].String()
	if !ok || v == "" || v == def {
		return argv
	}
	return append(argv, flag, v)
}

func appendIntFlag(argv []string, cfg value.Map, key, flag string, def int64) []string {
	v, ok := cfg[key].Int()
	if !ok || v == def {
		return argv
	}
	return append(argv, flag, fmt.Sprintf("%d", v))
}
