// Package tenant loads per tenant configuration files into immutable
// snapshots and keeps them until invalidated.
package tenant

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
	"github.com/mohammed-shakir/featureinfo-service/internal/permissions"
	"github.com/mohammed-shakir/featureinfo-service/internal/render"
)

// File is the yaml layout of one tenant config.
type File struct {
	Config      SettingsConfig     `yaml:"config"`
	Resources   Resources          `yaml:"resources"`
	Permissions permissions.Config `yaml:"permissions"`
}

type SettingsConfig struct {
	DefaultInfoTemplate       string `yaml:"default_info_template"`
	DefaultInfoTemplatePath   string `yaml:"default_info_template_path"`
	DefaultInfoTemplateBase64 string `yaml:"default_info_template_base64"`

	DefaultWMSURL  string `yaml:"default_wms_url"`
	DefaultDBURL   string `yaml:"default_db_url"`
	DataServiceURL string `yaml:"data_service_url"`

	TransformImageURLs          *bool `yaml:"transform_image_urls"`
	SkipEmptyAttributes         bool  `yaml:"skip_empty_attributes"`
	UsePermissionAttributeOrder bool  `yaml:"use_permission_attribute_order"`
	HideUnaliasedJSONKeys       bool  `yaml:"hide_unaliased_json_keys"`
}

type Resources struct {
	WMSServices []ServiceConfig `yaml:"wms_services"`
}

type ServiceConfig struct {
	Name      string                `yaml:"name"`
	RootLayer layertree.LayerConfig `yaml:"root_layer"`
}

type Settings struct {
	DefaultTemplate render.TenantDefault
	DefaultWMSURL   string
	DefaultDBURL    string
	DataServiceURL  string

	TransformImageURLs          bool
	SkipEmptyAttributes         bool
	UsePermissionAttributeOrder bool
	HideUnaliasedJSONKeys       bool
}

// Tenant is a read-only snapshot shared by concurrent requests.
type Tenant struct {
	Name        string
	Settings    Settings
	Permissions *permissions.Store
	LoadedAt    time.Time

	services map[string]*layertree.Tree
}

// Service returns the layer tree of a wms service.
func (t *Tenant) Service(name string) (*layertree.Tree, bool) {
	tree, ok := t.services[name]
	return tree, ok
}

// Services lists the configured service names in sorted order.
func (t *Tenant) Services() []string {
	out := make([]string, 0, len(t.services))
	for name := range t.services {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Parse decodes and validates a tenant config. Layer trees are built once
// here; duplicate names, cycles and dangling references fail the load.
func Parse(name string, r io.Reader) (*Tenant, error) {
	var f File
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode tenant %q: %w", model.ErrConfig, name, err)
	}

	settings, err := newSettings(f.Config)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", name, err)
	}
	t := &Tenant{
		Name:        name,
		Settings:    settings,
		Permissions: permissions.New(f.Permissions),
		LoadedAt:    time.Now(),
		services:    make(map[string]*layertree.Tree, len(f.Resources.WMSServices)),
	}
	for _, sc := range f.Resources.WMSServices {
		svc := strings.TrimSpace(sc.Name)
		if svc == "" {
			return nil, fmt.Errorf("%w: tenant %q: wms service without name", model.ErrConfig, name)
		}
		if _, dup := t.services[svc]; dup {
			return nil, fmt.Errorf("%w: tenant %q: duplicate wms service %q", model.ErrConfig, name, svc)
		}
		tree, err := layertree.Build(sc.RootLayer)
		if err != nil {
			return nil, fmt.Errorf("%w: tenant %q service %q: %w", model.ErrConfig, name, svc, err)
		}
		t.services[svc] = tree
	}
	return t, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(name string, b []byte) (*Tenant, error) {
	return Parse(name, bytes.NewReader(b))
}

func newSettings(c SettingsConfig) (Settings, error) {
	s := Settings{
		DefaultTemplate:             render.TenantDefault{Inline: c.DefaultInfoTemplate, Path: c.DefaultInfoTemplatePath},
		DefaultWMSURL:               c.DefaultWMSURL,
		DefaultDBURL:                c.DefaultDBURL,
		DataServiceURL:              c.DataServiceURL,
		TransformImageURLs:          c.TransformImageURLs == nil || *c.TransformImageURLs,
		SkipEmptyAttributes:         c.SkipEmptyAttributes,
		UsePermissionAttributeOrder: c.UsePermissionAttributeOrder,
		HideUnaliasedJSONKeys:       c.HideUnaliasedJSONKeys,
	}
	if s.DefaultTemplate.Inline == "" && c.DefaultInfoTemplateBase64 != "" {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.DefaultInfoTemplateBase64))
		if err != nil {
			return s, fmt.Errorf("%w: default_info_template_base64: %w", model.ErrConfig, err)
		}
		s.DefaultTemplate.Inline = string(b)
	}
	return s, nil
}
