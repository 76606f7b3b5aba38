package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidModuleCode is returned for codes matching neither accepted shape.
var ErrInvalidModuleCode = errors.New("invalid module code")

// CodeFormat identifies which accepted shape a module code matched.
type CodeFormat int

const (
	// CodeStandard is two letters then five digits, e.g. AC11001.
	CodeStandard CodeFormat = iota + 1
	// CodePlacement is eight letters then one digit, e.g. INDPLACE1.
	CodePlacement
)

var (
	standardCodeRe  = regexp.MustCompile(`^[A-Z]{2}[0-9]{5}$`)
	placementCodeRe = regexp.MustCompile(`^[A-Z]{8}[0-9]$`)
)

// CodePrefixLen is the number of leading characters forming the discipline prefix.
const CodePrefixLen = 2

// ModuleCode is a validated, trimmed module code.
type ModuleCode struct {
	Code   string
	Prefix string
	Format CodeFormat
}

// ValidateModuleCode trims raw and checks it against the accepted shapes.
// Lowercase input is rejected rather than coerced.
func ValidateModuleCode(raw string) (ModuleCode, error) {
	code := strings.TrimSpace(raw)

	var format CodeFormat
	switch {
	case standardCodeRe.MatchString(code):
		format = CodeStandard
	case placementCodeRe.MatchString(code):
		format = CodePlacement
	default:
		return ModuleCode{}, fmt.Errorf("%w '%s'", ErrInvalidModuleCode, code)
	}

	return ModuleCode{
		Code:   code,
		Prefix: CodePrefix(code),
		Format: format,
	}, nil
}

// CodePrefix returns the discipline prefix of a module code.
func CodePrefix(code string) string {
	if len(code) < CodePrefixLen {
		return code
	}
	return code[:CodePrefixLen]
}
