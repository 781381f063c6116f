// Package core defines the rule model shared by every other package.
//
// A Rule is one version of a coding or writing rule: identity (rule_id and version),
// scope (languages, domains, content and task types, file patterns), the prioritized
// conditions that carry its guidance, and usage statistics. Rule.ApplyDefaults fills
// the optional fields and Rule.Validate enforces the structural constraints, returning
// a *SchemaError that names the offending field.
//
// The error types in errors.go form the taxonomy that the importer, the database and
// the HTTP layer translate into user-facing results.
package core
