package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rhuss/relay/pkg/capability"
)

// FilesConfig configures the file tools.
type FilesConfig struct {
	Enabled bool

	// Root confines every path. Paths are interpreted relative to it.
	Root string

	// Writable registers write_file.
	Writable bool

	// MaxBytes caps read_file output (default: 1 MiB).
	MaxBytes int64
}

type fileTools struct {
	root     *os.Root
	writable bool
	maxBytes int64
}

func newFileTools(cfg FilesConfig) (*fileTools, error) {
	dir := cfg.Root
	if dir == "" {
		dir = "."
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("file tools root: %w", err)
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &fileTools{root: root, writable: cfg.Writable, maxBytes: maxBytes}, nil
}

var (
	pathSchema  = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the file root"}},"required":["path"]}`)
	writeSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the file root"},"content":{"type":"string","description":"Text to write"}},"required":["path","content"]}`)
)

func (t *fileTools) capabilities() []capability.Capability {
	caps := []capability.Capability{
		{
			Name:        "read_file",
			Description: "Read a text file.",
			Parameters:  pathSchema,
			Timeout:     fileTimeout,
			Category:    capability.CategoryQuery,
			Handler:     capability.BlockingFunc(t.readFile),
		},
		{
			Name:        "list_dir",
			Description: "List the entries of a directory. Directories end with a slash.",
			Parameters:  pathSchema,
			Timeout:     fileTimeout,
			Category:    capability.CategoryQuery,
			Handler:     capability.BlockingFunc(t.listDir),
		},
	}
	if t.writable {
		caps = append(caps, capability.Capability{
			Name:        "write_file",
			Description: "Write a text file, creating parent directories as needed.",
			Parameters:  writeSchema,
			Timeout:     fileTimeout,
			Category:    capability.CategoryAction,
			Handler:     capability.BlockingFunc(t.writeFile),
		})
	}
	return caps
}

// clean maps a caller path onto a root-relative path.
func clean(p string) string {
	p = path.Clean("/" + filepath.ToSlash(p))
	if p == "/" {
		return "."
	}
	return strings.TrimPrefix(p, "/")
}

func (t *fileTools) readFile(_ context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	f, err := t.root.Open(clean(p))
	if err != nil {
		return nil, fileError("read", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, t.maxBytes+1))
	if err != nil {
		return nil, fileError("read", p, err)
	}
	if int64(len(data)) > t.maxBytes {
		return nil, fmt.Errorf("read %s: file exceeds %d bytes", p, t.maxBytes)
	}
	return string(data), nil
}

func (t *fileTools) listDir(_ context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(t.root.FS(), clean(p))
	if err != nil {
		return nil, fileError("list", p, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
		if e.IsDir() {
			names[i] += "/"
		}
	}
	slices.Sort(names)
	return names, nil
}

func (t *fileTools) writeFile(_ context.Context, args map[string]any) (any, error) {
	p, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content must be a string")
	}
	rel := clean(p)
	if rel == "." {
		return nil, fmt.Errorf("write %s: not a file path", p)
	}
	if dir := path.Dir(rel); dir != "." {
		if err := t.root.MkdirAll(dir, 0o755); err != nil {
			return nil, fileError("write", p, err)
		}
	}
	if err := t.root.WriteFile(rel, []byte(content), 0o644); err != nil {
		return nil, fileError("write", p, err)
	}
	return map[string]any{"path": rel, "bytes": len(content)}, nil
}

func fileError(op, p string, err error) error {
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("%s %s: no such file or directory", op, p)
	case os.IsPermission(err):
		return fmt.Errorf("%s %s: permission denied", op, p)
	default:
		return fmt.Errorf("%s %s: %w", op, p, err)
	}
}
