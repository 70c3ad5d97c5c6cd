// Package naming parses top-level drop folder names and builds package identities.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
)

// DefaultPattern matches "<project>-<user>" with exactly one dash.
const DefaultPattern = `^([^-]*)-([^-]*)$`

// Owner is the project and user a top-level folder belongs to.
type Owner struct {
	Project string
	User    string
}

// Parser extracts owners from folder names.
type Parser struct {
	re *regexp.Regexp
}

// NewParser compiles pattern, which must have exactly two capture groups: project then user.
func NewParser(pattern string) (*Parser, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid naming pattern: %w", err)
	}
	if re.NumSubexp() != 2 {
		return nil, fmt.Errorf("naming pattern %q must have two capture groups, has %d", pattern, re.NumSubexp())
	}
	return &Parser{re: re}, nil
}

// Parse splits a top-level folder name into its owner.
// Names that do not match, or match with an empty project or user, are naming convention errors.
func (p *Parser) Parse(name string) (Owner, error) {
	m := p.re.FindStringSubmatch(name)
	if m == nil || m[1] == "" || m[2] == "" {
		return Owner{}, derrors.NamingConventionError("folder name does not follow the naming convention").
			WithContext("name", name).
			WithContext("pattern", p.re.String()).
			Build()
	}
	return Owner{Project: m[1], User: m[2]}, nil
}

// Identity builds the state key for a package folder: "<top-level>/<package>", NFC-normalized.
func Identity(topLevel, pkg string) string {
	return norm.NFC.String(topLevel + "/" + pkg)
}

// SplitIdentity reverses Identity.
func SplitIdentity(identity string) (topLevel, pkg string, ok bool) {
	topLevel, pkg, ok = strings.Cut(identity, "/")
	if !ok || topLevel == "" || pkg == "" || strings.Contains(pkg, "/") {
		return "", "", false
	}
	return topLevel, pkg, true
}
