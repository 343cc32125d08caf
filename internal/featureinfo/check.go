package featureinfo

import (
	"context"
	"fmt"
	"html/template"

	"github.com/mohammed-shakir/featureinfo-service/internal/core/model"
	"github.com/mohammed-shakir/featureinfo-service/internal/layertree"
	"github.com/mohammed-shakir/featureinfo-service/internal/render"
	"github.com/mohammed-shakir/featureinfo-service/internal/tenant"
)

// Check compiles every template a tenant can reach, renders it once against
// an empty feature, and reports layers whose configuration failed to build.
// It does not contact any backend.
func (s *Service) Check(t *tenant.Tenant) []error {
	var errs []error
	eng := s.engine(t.Settings.TransformImageURLs)
	compile := func(where string, tpl *layertree.InfoTemplate) {
		src, err := s.sources.Resolve(tpl, t.Settings.DefaultTemplate)
		if err == nil {
			var compiled *template.Template
			if compiled, err = eng.Compile(src); err == nil {
				_, err = eng.Render(context.Background(), compiled, render.Context{Feature: render.NewFeatureView(model.Feature{})})
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
	}

	compile(t.Name+": default template", nil)
	for _, name := range t.Services() {
		tree, _ := t.Service(name)
		tree.Walk(func(n *layertree.Node) {
			where := fmt.Sprintf("%s/%s/%s", t.Name, name, n.Name)
			if n.ConfigErr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, n.ConfigErr))
				return
			}
			if n.Template != nil {
				compile(where, n.Template)
			}
		})
	}
	return errs
}
