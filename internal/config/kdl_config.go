package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

const configFileName = ".ingestd.kdl"

// LoadKDL loads <projectRoot>/.ingestd.kdl if it exists, returning (nil, nil)
// when it's absent so callers can fall through to the next config layer
// (mirrors the teacher's LoadKDL "no config found, use defaults" contract).
func LoadKDL(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, configFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", configFileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Project.Root == "" {
		if abs, err := filepath.Abs(projectRoot); err == nil {
			cfg.Project.Root = abs
		} else {
			cfg.Project.Root = projectRoot
		}
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(projectRoot, cfg.Project.Root))
	}

	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFileName, err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "filter":
			parseFilterSection(cfg, n)
		case "scanner":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_depth":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scanner.MaxDepth = v
					}
				case "batch_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scanner.BatchSize = v
					}
				case "timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Scanner.Timeout = v
					}
				}
			}
		case "chunker":
			parseChunkerSection(cfg, n)
		case "worker":
			parseWorkerSection(cfg, n)
		case "orchestrator":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_concurrent_directories":
					if v, ok := firstIntArg(cn); ok {
						cfg.Orchestrator.MaxConcurrentDirectories = v
					}
				case "poll_interval_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Orchestrator.PollIntervalSec = v
					}
				}
			}
		case "error_control":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_retry_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.ErrorControl.MaxRetryAttempts = v
					}
				case "base_delay_sec":
					if v, ok := firstFloatArg(cn); ok {
						cfg.ErrorControl.BaseDelaySec = v
					}
				case "backoff_multiplier":
					if v, ok := firstFloatArg(cn); ok {
						cfg.ErrorControl.BackoffMultiplier = v
					}
				case "error_threshold":
					if v, ok := firstIntArg(cn); ok {
						cfg.ErrorControl.ErrorThreshold = v
					}
				}
			}
		case "include":
			cfg.Filter.IncludePatterns = append(cfg.Filter.IncludePatterns, collectStringArgs(n)...)
		case "exclude":
			cfg.Filter.ExcludePatterns = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func parseFilterSection(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "extensions":
			cfg.Filter.SupportedExtensions = collectStringArgs(cn)
		case "max_file_size":
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Filter.MaxFileSize = sz
				}
			} else if v, ok := firstIntArg(cn); ok {
				cfg.Filter.MaxFileSize = int64(v)
			}
		case "min_file_size":
			if s, ok := firstStringArg(cn); ok {
				if sz, err := parseSize(s); err == nil {
					cfg.Filter.MinFileSize = sz
				}
			} else if v, ok := firstIntArg(cn); ok {
				cfg.Filter.MinFileSize = int64(v)
			}
		}
	}
}

func parseChunkerSection(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_chunk_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Chunker.MaxChunkSize = v
			}
		case "min_chunk_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Chunker.MinChunkSize = v
			}
		case "overlap_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Chunker.OverlapSize = v
			}
		case "min_importance_score":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Chunker.MinImportanceScore = v
			}
		case "min_complexity_score":
			if v, ok := firstFloatArg(cn); ok {
				cfg.Chunker.MinComplexityScore = v
			}
		case "preserve_structure":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Chunker.PreserveStructure = b
			}
		case "merge_small_blocks":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Chunker.MergeSmallBlocks = b
			}
		case "split_large_blocks":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Chunker.SplitLargeBlocks = b
			}
		case "include_surrounding_context":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Chunker.IncludeSurroundingCtx = b
			}
		case "context_lines":
			if v, ok := firstIntArg(cn); ok {
				cfg.Chunker.ContextLines = v
			}
		}
	}
}

func parseWorkerSection(cfg *Config, n *document.Node) {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "max_workers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Worker.MaxWorkers = v
			}
		case "worker_timeout_sec":
			if v, ok := firstIntArg(cn); ok {
				cfg.Worker.WorkerTimeoutSec = v
			}
		case "chunk_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Worker.ChunkSize = v
			}
		case "enable_graceful_shutdown":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Worker.EnableGracefulShutdown = b
			}
		case "graceful_shutdown_timeout_sec":
			if v, ok := firstIntArg(cn); ok {
				cfg.Worker.GracefulShutdownTimeoutSec = v
			}
		case "auto_restart_failed_workers":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Worker.AutoRestartFailedWorkers = b
			}
		case "max_restart_attempts":
			if v, ok := firstIntArg(cn); ok {
				cfg.Worker.MaxRestartAttempts = v
			}
		case "batch_size":
			if v, ok := firstIntArg(cn); ok {
				cfg.Worker.BatchSize = v
			}
		}
	}
}

// --- kdl-go document helpers (grounded on the teacher's kdl_config.go) ---

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
