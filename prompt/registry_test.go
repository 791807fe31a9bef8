package prompt

import (
	"strings"
	"testing"

	"github.com/hupe1980/promptmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobPostingVariant() Variant {
	return Variant{
		Name:           "v1",
		ModelID:        "claude-3-5-sonnet-20241022",
		Kind:           KindText,
		InputVariables: []string{"job_title", "responsibilities", "requirements", "location", "work_type"},
		Text: "Write a job posting for {{job_title}}.\n" +
			"Responsibilities: {{responsibilities}}\n" +
			"Requirements: {{requirements}}\n" +
			"Location: {{location}} ({{work_type}})",
		Inference: model.InferenceConfig{MaxTokens: 512, Temperature: 0.7},
	}
}

func TestRegistry_CreateAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create("job-posting", "Generates job postings", []Variant{jobPostingVariant()}, "v1"))

	vars := map[string]string{
		"job_title":        "Site Reliability Engineer",
		"responsibilities": "Keep the lights on",
		"requirements":     "Go, Linux",
		"location":         "Berlin",
		"work_type":        "hybrid",
	}

	resolved, err := r.Resolve("job-posting", "v1", vars)
	require.NoError(t, err)

	for _, v := range vars {
		assert.Contains(t, resolved.Text, v)
	}
	assert.NotContains(t, resolved.Text, "{{")
	assert.Equal(t, "claude-3-5-sonnet-20241022", resolved.ModelID)
	assert.Equal(t, 512, resolved.Inference.MaxTokens)
}

func TestRegistry_MissingVariable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create("job-posting", "", []Variant{jobPostingVariant()}, "v1"))

	vars := map[string]string{
		"job_title":        "SRE",
		"responsibilities": "ops",
		"requirements":     "Go",
		"location":         "Berlin",
		// work_type omitted
	}

	_, err := r.Resolve("job-posting", "v1", vars)
	var missingErr *MissingVariableError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, "work_type", missingErr.Variable)
}

func TestRegistry_ExtraVariablesIgnored(t *testing.T) {
	r := NewRegistry()
	v := Variant{Name: "v1", Kind: KindText, InputVariables: []string{"name"}, Text: "Hello {{name}}"}
	require.NoError(t, r.Create("greeting", "", []Variant{v}, "v1"))

	resolved, err := r.Resolve("greeting", "", map[string]string{"name": "Ada", "unused": "x"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada", resolved.Text)
}

func TestRegistry_DuplicateTemplateName(t *testing.T) {
	r := NewRegistry()
	v := Variant{Name: "v1", Kind: KindText, InputVariables: nil, Text: "static"}
	require.NoError(t, r.Create("t", "", []Variant{v}, "v1"))

	err := r.Create("t", "", []Variant{v}, "v1")
	var dupErr *DuplicateNameError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "template", dupErr.Kind)
}

func TestRegistry_VariableMismatch(t *testing.T) {
	r := NewRegistry()

	// Declared variable never referenced.
	v := Variant{Name: "v1", Kind: KindText, InputVariables: []string{"a", "b"}, Text: "only {{a}}"}
	err := r.Create("t", "", []Variant{v}, "v1")
	var mismatch *VariableMismatchError
	require.ErrorAs(t, err, &mismatch)

	// Referenced placeholder never declared.
	v = Variant{Name: "v1", Kind: KindText, InputVariables: []string{"a"}, Text: "{{a}} and {{b}}"}
	err = r.Create("t2", "", []Variant{v}, "v1")
	require.ErrorAs(t, err, &mismatch)
}

func TestRegistry_AddVariantAndSetDefault(t *testing.T) {
	r := NewRegistry()
	v1 := Variant{Name: "v1", Kind: KindText, InputVariables: []string{"q"}, Text: "Q: {{q}}"}
	require.NoError(t, r.Create("qa", "", []Variant{v1}, "v1"))

	v2 := Variant{Name: "v2", ModelID: "gpt-4o-mini", Kind: KindText, InputVariables: []string{"q"}, Text: "Question: {{q}}"}
	require.NoError(t, r.AddVariant("qa", v2))

	// Duplicate variant name rejected.
	var dupErr *DuplicateNameError
	require.ErrorAs(t, r.AddVariant("qa", v2), &dupErr)
	assert.Equal(t, "variant", dupErr.Kind)

	// Default still v1 until moved.
	resolved, err := r.GetDefault("qa", map[string]string{"q": "why?"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved.Text, "Q:"))

	require.NoError(t, r.SetDefault("qa", "v2"))
	resolved, err = r.GetDefault("qa", map[string]string{"q": "why?"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved.Text, "Question:"))
	assert.Equal(t, "gpt-4o-mini", resolved.ModelID)

	// Variant list stayed append-only.
	tpl, err := r.Get("qa")
	require.NoError(t, err)
	assert.Len(t, tpl.Variants, 2)
	assert.Equal(t, "v1", tpl.Variants[0].Name)
}

func TestRegistry_UnknownNames(t *testing.T) {
	r := NewRegistry()
	var nf *NotFoundError

	_, err := r.Resolve("nope", "", nil)
	require.ErrorAs(t, err, &nf)

	require.ErrorAs(t, r.AddVariant("nope", Variant{Name: "v1"}), &nf)
	require.ErrorAs(t, r.SetDefault("nope", "v1"), &nf)
}
