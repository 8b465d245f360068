package shaders

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed raymarch.wgsl
var RaymarchWGSL string

//go:embed preprocess.wgsl.tmpl
var preprocessTemplate string

var preprocessTmpl = template.Must(template.New("preprocess").Parse(preprocessTemplate))

// PreprocessWGSL renders the preprocessing compute shader for a raw volume
// whose texture_3d component type is sampleType (u32, i32 or f32).
func PreprocessWGSL(sampleType string) (string, error) {
	switch sampleType {
	case "u32", "i32", "f32":
	default:
		return "", fmt.Errorf("shaders: unsupported raw sample type %q", sampleType)
	}
	var sb strings.Builder
	if err := preprocessTmpl.Execute(&sb, struct{ SampleType string }{sampleType}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
