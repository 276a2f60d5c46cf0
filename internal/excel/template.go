package excel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultTemplate is the header layout used when a request names none.
const DefaultTemplate = "default"

// HeaderStyle is the layout a template applies to the header row.
type HeaderStyle struct {
	FontName  string  `json:"font_name"`
	FontSize  float64 `json:"font_size"`
	Bold      bool    `json:"bold"`
	FillColor string  `json:"fill_color"`
	ColWidth  float64 `json:"col_width"`
}

// defaultStyle mirrors the layout the service has always shipped: bold
// Arial 11 on a light green fill.
var defaultStyle = HeaderStyle{
	FontName:  "Arial",
	FontSize:  11,
	Bold:      true,
	FillColor: "#D9EAD3",
	ColWidth:  15,
}

// TemplateStore resolves template names to header styles. Styles beyond the
// built-in default are read from JSON files (<name>.json) in a directory;
// an unknown name falls back to the default layout rather than failing,
// matching how the service behaves when a template file is absent.
type TemplateStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]HeaderStyle
}

// NewTemplateStore creates a store backed by dir. An empty dir serves only
// the built-in default.
func NewTemplateStore(dir string) *TemplateStore {
	return &TemplateStore{
		dir:   dir,
		cache: make(map[string]HeaderStyle),
	}
}

// Resolve returns the header style for name.
func (s *TemplateStore) Resolve(name string) HeaderStyle {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".xlsx")
	if name == "" || name == DefaultTemplate {
		return defaultStyle
	}

	s.mu.RLock()
	style, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return style
	}

	style = s.load(name)
	s.mu.Lock()
	s.cache[name] = style
	s.mu.Unlock()
	return style
}

func (s *TemplateStore) load(name string) HeaderStyle {
	if s.dir == "" {
		return defaultStyle
	}
	// Template names come from requests; keep path resolution inside dir.
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return defaultStyle
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if err != nil {
		return defaultStyle
	}

	style := defaultStyle
	if err := json.Unmarshal(data, &style); err != nil {
		return defaultStyle
	}
	return style
}
