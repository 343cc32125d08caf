package layertree

import "github.com/mohammed-shakir/featureinfo-service/internal/core/model"

// LayerConfig is one layer or group layer as written in the tenant config.
// A group lists nested definitions in Layers and may reference layers
// defined elsewhere in the same service through Sublayers.
type LayerConfig struct {
	Name          string              `yaml:"name"`
	Title         string              `yaml:"title"`
	Layers        []LayerConfig       `yaml:"layers"`
	Sublayers     []string            `yaml:"sublayers"`
	HideSublayers bool                `yaml:"hide_sublayers"`
	Attributes    []AttributeConfig   `yaml:"attributes"`
	DisplayField  string              `yaml:"display_field"`
	FeatureReport string              `yaml:"feature_report"`
	InfoTemplate  *InfoTemplateConfig `yaml:"info_template"`
}

func (c LayerConfig) isGroup() bool {
	return len(c.Layers) > 0 || len(c.Sublayers) > 0
}

type AttributeConfig struct {
	Name                 string           `yaml:"name"`
	Alias                string           `yaml:"alias"`
	Format               string           `yaml:"format"`
	FormatBase64         string           `yaml:"format_base64"`
	JSONAttributeAliases []model.KeyAlias `yaml:"json_attribute_aliases"`
}

type InfoTemplateConfig struct {
	Type string `yaml:"type"`

	// wms
	WMSURL     string `yaml:"wms_url"`
	InfoFormat string `yaml:"info_format"`
	IDProperty string `yaml:"id_property"`

	// sql
	DBURL     string `yaml:"db_url"`
	SQL       string `yaml:"sql"`
	SQLBase64 string `yaml:"sql_base64"`

	// module
	Module string `yaml:"module"`

	Template       string `yaml:"template"`
	TemplateBase64 string `yaml:"template_base64"`
	TemplatePath   string `yaml:"template_path"`
}
