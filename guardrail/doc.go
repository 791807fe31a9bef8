// Package guardrail implements configurable safety policy evaluation for
// conversation input and output text. A Pipeline evaluates a Policy in fixed
// precedence order: denied topics, content-category filters, word/phrase
// lists, PII entity detection and (output only) grounding against assembled
// retrieval context. The first matching stage short-circuits with its action:
// PASS leaves text unchanged, BLOCK substitutes the configured policy message,
// ANONYMIZE rewrites matched spans with placeholder tokens and continues.
//
// Policies are plain structs constructed in code or loaded from YAML via
// LoadPolicy/ParsePolicy.
package guardrail
