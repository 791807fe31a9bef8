// Package prompt implements the versioned prompt template registry. Templates
// are created once and evolve only by appending variants or moving the default
// variant pointer; existing variant text is never mutated, preserving rollback.
// Resolution substitutes {{var}} placeholders against a caller-supplied
// variable map and returns the resolved text together with the variant's
// inference configuration and target model identifier.
package prompt
