package prompt

import (
	"sync"

	"github.com/hupe1980/promptmesh/internal/util"
)

// Registry is an in-memory template store keyed by template name. It is safe
// for concurrent access; returned templates are deep copies so callers cannot
// mutate registry state.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Template)}
}

// Create registers a new template. It fails with DuplicateNameError if the
// name exists and with VariableMismatchError if any variant's placeholders do
// not exactly equal its declared input-variable set. The default variant must
// be one of the supplied variants.
func (r *Registry) Create(name, description string, variants []Variant, defaultVariant string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[name]; ok {
		return &DuplicateNameError{Kind: "template", Name: name}
	}

	seen := map[string]bool{}
	defaultFound := false
	for _, v := range variants {
		if seen[v.Name] {
			return &DuplicateNameError{Kind: "variant", Name: v.Name}
		}
		seen[v.Name] = true

		if err := validateVariant(name, v); err != nil {
			return err
		}
		if v.Name == defaultVariant {
			defaultFound = true
		}
	}
	if !defaultFound {
		return &NotFoundError{Kind: "variant", Name: defaultVariant}
	}

	tpl := &Template{
		Name:           name,
		Description:    description,
		Variants:       make([]Variant, len(variants)),
		DefaultVariant: defaultVariant,
	}
	copy(tpl.Variants, variants)
	r.templates[name] = tpl

	return nil
}

// AddVariant appends a variant to an existing template. Variant names are
// unique per template; collisions fail with DuplicateNameError. Existing
// variants are never mutated.
func (r *Registry) AddVariant(name string, variant Variant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tpl, ok := r.templates[name]
	if !ok {
		return &NotFoundError{Kind: "template", Name: name}
	}

	for _, v := range tpl.Variants {
		if v.Name == variant.Name {
			return &DuplicateNameError{Kind: "variant", Name: variant.Name}
		}
	}

	if err := validateVariant(name, variant); err != nil {
		return err
	}

	tpl.Variants = append(tpl.Variants, variant)

	return nil
}

// SetDefault moves the default variant pointer to an existing variant.
func (r *Registry) SetDefault(name, variantName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tpl, ok := r.templates[name]
	if !ok {
		return &NotFoundError{Kind: "template", Name: name}
	}

	for _, v := range tpl.Variants {
		if v.Name == variantName {
			tpl.DefaultVariant = variantName
			return nil
		}
	}

	return &NotFoundError{Kind: "variant", Name: variantName}
}

// Resolve substitutes all placeholders of the named variant (empty
// variantName selects the current default). A declared variable absent from
// variables fails with MissingVariableError; extra supplied variables are
// ignored silently.
func (r *Registry) Resolve(name, variantName string, variables map[string]string) (*Resolved, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[name]
	if !ok {
		return nil, &NotFoundError{Kind: "template", Name: name}
	}

	if variantName == "" {
		variantName = tpl.DefaultVariant
	}

	var variant *Variant
	for i := range tpl.Variants {
		if tpl.Variants[i].Name == variantName {
			variant = &tpl.Variants[i]
			break
		}
	}
	if variant == nil {
		return nil, &NotFoundError{Kind: "variant", Name: variantName}
	}

	for _, declared := range variant.InputVariables {
		if _, ok := variables[declared]; !ok {
			return nil, &MissingVariableError{Template: name, Variant: variantName, Variable: declared}
		}
	}

	return &Resolved{
		Template:  name,
		Variant:   variant.Name,
		Kind:      variant.Kind,
		Text:      util.Substitute(variant.Text, variables),
		ModelID:   variant.ModelID,
		Inference: variant.Inference,
	}, nil
}

// GetDefault resolves using the current default variant pointer.
func (r *Registry) GetDefault(name string, variables map[string]string) (*Resolved, error) {
	return r.Resolve(name, "", variables)
}

// Get returns a deep copy of a template for introspection.
func (r *Registry) Get(name string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tpl, ok := r.templates[name]
	if !ok {
		return nil, &NotFoundError{Kind: "template", Name: name}
	}

	clone := &Template{
		Name:           tpl.Name,
		Description:    tpl.Description,
		Variants:       make([]Variant, len(tpl.Variants)),
		DefaultVariant: tpl.DefaultVariant,
	}
	copy(clone.Variants, tpl.Variants)

	return clone, nil
}

// List returns the registered template names in unspecified order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// validateVariant enforces that template text references exactly the declared
// input-variable set (no extra, no missing).
func validateVariant(templateName string, v Variant) error {
	referenced := util.Placeholders(v.Text)
	if !util.SameStringSet(v.InputVariables, referenced) {
		return &VariableMismatchError{
			Template:   templateName,
			Variant:    v.Name,
			Declared:   v.InputVariables,
			Referenced: referenced,
		}
	}
	return nil
}
