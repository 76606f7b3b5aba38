package core

// fields.go resolves human-authored spreadsheet headers to canonical fields.
//
// Roster files come from many departments and rarely agree on column names,
// so each canonical field carries an ordered list of accepted aliases. The
// first alias that appears in the header row wins.

import (
	"fmt"
	"strings"
)

// Field is a canonical roster field name.
type Field string

const (
	FieldModuleCode Field = "module_code"
	FieldModuleName Field = "module_name"
	FieldLevel      Field = "level"
	FieldLeadName   Field = "lead_name"
	FieldInUse      Field = "in_use"
)

// FieldAliases lists the accepted header spellings for one canonical field.
type FieldAliases struct {
	Field    Field
	Aliases  []string // Compared case-insensitively after trimming
	Required bool
}

// AliasTable is an ordered set of field alias definitions.
type AliasTable []FieldAliases

// ColumnMap maps canonical fields to the header text found in the file.
// Optional fields that could not be matched are absent.
type ColumnMap map[Field]string

// Header returns the header mapped to f, or "" if f was not matched.
func (m ColumnMap) Header(f Field) string {
	return m[f]
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() AliasTable {
	return AliasTable{
		{Field: FieldModuleCode, Aliases: []string{"module code", "module", "code"}, Required: true},
		{Field: FieldModuleName, Aliases: []string{"name", "module name"}, Required: true},
		{Field: FieldLevel, Aliases: []string{"level"}, Required: true},
		{Field: FieldLeadName, Aliases: []string{"tutor", "module lead", "lecturer"}},
		{Field: FieldInUse, Aliases: []string{"in use", "active", "status"}},
	}
}

// WithExtra returns a copy of t where each field's aliases are extended by
// extra[field]. Extra aliases are tried after the built-in ones and
// duplicates are ignored. Unknown fields in extra are ignored.
func (t AliasTable) WithExtra(extra map[Field][]string) AliasTable {
	out := make(AliasTable, len(t))
	for i, fa := range t {
		aliases := append([]string(nil), fa.Aliases...)
		seen := make(map[string]bool, len(aliases))
		for _, a := range aliases {
			seen[normalizeHeader(a)] = true
		}
		for _, a := range extra[fa.Field] {
			key := normalizeHeader(a)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			aliases = append(aliases, a)
		}
		fa.Aliases = aliases
		out[i] = fa
	}
	return out
}

// MissingColumnsError reports required fields that no header matched.
// It aborts an import before any row is processed.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ResolveColumns maps canonical fields onto the given headers.
//
// For each field the aliases are tried in order and the first alias present
// among the headers selects that header. Returns *MissingColumnsError listing
// every required field without a match.
func ResolveColumns(headers []string, table AliasTable) (ColumnMap, error) {
	// First occurrence wins when a file repeats a header.
	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, exists := byKey[key]; !exists {
			byKey[key] = h
		}
	}

	cols := make(ColumnMap, len(table))
	var missing []string

	for _, fa := range table {
		header, ok := matchAlias(byKey, fa.Aliases)
		if ok {
			cols[fa.Field] = header
			continue
		}
		if fa.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", fa.Field, strings.Join(fa.Aliases, "/")))
		}
	}

	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}
	return cols, nil
}

func matchAlias(byKey map[string]string, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if h, ok := byKey[normalizeHeader(alias)]; ok {
			return h, true
		}
	}
	return "", false
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
