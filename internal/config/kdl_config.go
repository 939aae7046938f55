package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/rmodel/internal/debug"
)

// LoadKDL loads dir/.rmodel.kdl. It returns nil, nil when the file does not exist.
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, FileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kdlPath, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	cfg.Root = absDir

	// Relative mirror roots are relative to the directory holding the file
	if !filepath.IsAbs(cfg.Mirror.Root) {
		cfg.Mirror.Root = filepath.Join(absDir, cfg.Mirror.Root)
	}
	cfg.Mirror.Root = filepath.Clean(cfg.Mirror.Root)

	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()
	cfg.Mirror.Root = "."

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "model":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "name":
					if s, ok := firstStringArg(cn); ok {
						cfg.Model.Name = s
					}
				case "history_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Model.HistorySize = v
					}
				}
			}
		case "debug":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Debug.Enabled = b
					}
				case "log_file":
					if s, ok := firstStringArg(cn); ok {
						cfg.Debug.LogFile = s
					}
				}
			}
		case "tags":
			for _, tn := range n.Children {
				if nodeName(tn) != "tag" {
					continue
				}
				tag, err := parseTag(tn)
				if err != nil {
					return nil, err
				}
				cfg.Tags = append(cfg.Tags, tag)
			}
		case "mirror":
			if err := parseMirror(cfg, n); err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}

// parseTag reads tag "name" { marker "field" "value"; glob "pattern"; match "all" }
func parseTag(n *document.Node) (Tag, error) {
	name, ok := firstStringArg(n)
	if !ok {
		return Tag{}, fmt.Errorf("tag node needs a name argument")
	}
	tag := Tag{Name: name}

	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "marker":
			args := collectStringArgs(cn)
			spec := MarkerSpec{}
			if len(args) >= 2 {
				spec.Field, spec.Value = args[0], args[1]
			}
			if spec.Field == "" || spec.Value == "" {
				return Tag{}, fmt.Errorf("tag %q: marker needs a field and a value", name)
			}
			tag.Markers = append(tag.Markers, spec)
		case "glob":
			tag.Globs = append(tag.Globs, collectStringArgs(cn)...)
		case "match":
			if s, ok := firstStringArg(cn); ok {
				tag.Match = s
			}
		}
	}
	return tag, nil
}

func parseMirror(cfg *Config, n *document.Node) error {
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "root":
			if s, ok := firstStringArg(cn); ok {
				cfg.Mirror.Root = s
			}
		case "mount":
			if s, ok := firstStringArg(cn); ok {
				cfg.Mirror.Mount = s
			}
		case "include":
			cfg.Mirror.Include = append(cfg.Mirror.Include, collectStringArgs(cn)...)
		case "exclude":
			// An exclude block replaces the default exclusions
			cfg.Mirror.Exclude = collectStringArgs(cn)
		case "debounce_ms":
			if v, ok := firstIntArg(cn); ok {
				cfg.Mirror.DebounceMs = v
			}
		case "max_file_size", "max_text_size":
			size, ok := sizeArg(cn)
			if !ok {
				return fmt.Errorf("mirror %s: expected a byte count or size like \"10MB\"", nodeName(cn))
			}
			if nodeName(cn) == "max_file_size" {
				cfg.Mirror.MaxFileSize = size
			} else {
				cfg.Mirror.MaxTextSize = size
			}
		case "respect_gitignore":
			if b, ok := firstBoolArg(cn); ok {
				cfg.Mirror.RespectGitignore = b
			}
		case "workers":
			if v, ok := firstIntArg(cn); ok {
				cfg.Mirror.Workers = v
			}
		}
	}
	return nil
}

// Helper functions over the kdl-go document model
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
	debug.Printf("config: invalid bool value for '%s', got %T\n", nodeName(n), n.Arguments[0].Value)
	return false, false
}

// sizeArg accepts either an integer byte count or a size string
func sizeArg(n *document.Node) (int64, bool) {
	if v, ok := firstIntArg(n); ok {
		return int64(v), true
	}
	if s, ok := firstStringArg(n); ok {
		if size, err := parseSize(s); err == nil {
			return size, true
		}
	}
	return 0, false
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

	// Block form: exclude { "pattern" } makes each string a child node name
	if len(out) == 0 && len(n.Children) > 0 {
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

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s
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
		numStr = strings.TrimSuffix(s, "B")
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
