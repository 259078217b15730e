// Package output renders authcore-cli results as a table, JSON or YAML.
//
// All formats take their field names from json tags, so the three outputs
// of a command agree on naming. Struct fields tagged `table:"-"` are hidden
// from tables and `table:"wide"` fields appear only with --wide.
package output
