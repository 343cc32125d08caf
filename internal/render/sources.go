package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
)

// TenantDefault is the tenant wide fallback template. Base64 sources are
// decoded by the tenant loader.
type TenantDefault struct {
	Inline string
	Path   string
}

// Sources resolves template text: layer inline, layer file, tenant
// default, built-in default. Files are read below one directory only.
type Sources struct {
	root  *os.Root
	files *lru.Cache[string, string]
}

// NewSources opens dir as the template root. An empty dir disables
// template_path.
func NewSources(dir string, size int) (*Sources, error) {
	if size <= 0 {
		size = 64
	}
	files, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("template file cache: %w", err)
	}
	s := &Sources{files: files}
	if dir == "" {
		return s, nil
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open template dir: %w", err)
	}
	s.root = root
	return s, nil
}

func (s *Sources) Close() error {
	if s.root == nil {
		return nil
	}
	return s.root.Close()
}

// Purge forgets cached file contents, e.g. after a config reload.
func (s *Sources) Purge() { s.files.Purge() }

// Resolve returns the template text for a layer. tpl is nil when the layer
// has no custom template or the caller may not use it.
func (s *Sources) Resolve(tpl *layertree.InfoTemplate, def TenantDefault) (string, error) {
	if tpl != nil {
		if strings.TrimSpace(tpl.Template) != "" {
			return tpl.Template, nil
		}
		if tpl.TemplatePath != "" {
			return s.read(tpl.TemplatePath)
		}
	}
	if strings.TrimSpace(def.Inline) != "" {
		return def.Inline, nil
	}
	if def.Path != "" {
		return s.read(def.Path)
	}
	return DefaultTemplate, nil
}

func (s *Sources) read(path string) (string, error) {
	if s.root == nil {
		return "", fmt.Errorf("%w: template_path %q without template directory", model.ErrConfig, path)
	}
	name := filepath.Clean(strings.TrimPrefix(path, "/"))
	if v, ok := s.files.Get(name); ok {
		return v, nil
	}
	f, err := s.root.Open(name)
	if err != nil {
		return "", fmt.Errorf("%w: template %q: %w", model.ErrConfig, path, err)
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("%w: read template %q: %w", model.ErrConfig, path, err)
	}
	s.files.Add(name, string(b))
	return string(b), nil
}
