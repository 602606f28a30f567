// Package pagination implements the limit/offset paging and ordering
// contract shared by every list endpoint.
package pagination

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var ErrBadOrderField = errors.New("unknown ordering field")

type Page struct {
	Limit  int  `form:"limit"`
	Offset int  `form:"offset"`
	Bypass bool `form:"bypass_pagination"`
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Apply attaches limit/offset to a query unless pagination is bypassed.
func (p Page) Apply(stmt *gorm.DB) *gorm.DB {
	if p.Bypass {
		return stmt
	}
	n := p.normalized()
	return stmt.Limit(n.Limit).Offset(n.Offset)
}

// OrderBy parses a comma-separated order_by expression ("-created_at,id")
// and validates each field against the model's allowed set.
func OrderBy(expr string, allowed map[string]bool) ([]string, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	var clauses []string
	for _, raw := range strings.Split(expr, ",") {
		field := strings.TrimSpace(raw)
		desc := false
		if strings.HasPrefix(field, "-") {
			desc = true
			field = field[1:]
		}
		if field == "" || !allowed[field] {
			return nil, ErrBadOrderField
		}
		if desc {
			clauses = append(clauses, field+" DESC")
		} else {
			clauses = append(clauses, field+" ASC")
		}
	}
	return clauses, nil
}

// ApplyOrder adds validated order clauses, falling back to newest-first.
func ApplyOrder(stmt *gorm.DB, clauses []string) *gorm.DB {
	if len(clauses) == 0 {
		return stmt.Order("created_at DESC")
	}
	for _, c := range clauses {
		stmt = stmt.Order(c)
	}
	return stmt
}
