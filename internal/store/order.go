package store

import (
	"fmt"
	"strings"
)

// Order is one ORDER BY term requested by a client.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder parses "col.desc,col2.asc" (direction optional, ascending by default).
func ParseOrder(s string) ([]Order, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var orders []Order
	for _, term := range strings.Split(s, ",") {
		col, dir, _ := strings.Cut(strings.TrimSpace(term), ".")
		o := Order{Column: col}
		switch dir {
		case "", "asc":
		case "desc":
			o.Desc = true
		default:
			return nil, fmt.Errorf("invalid order direction %q", dir)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// orderClause renders orders against the allowed column set. Columns are
// never interpolated unless they appear in allowed.
func orderClause(orders []Order, allowed []string, fallback string) (string, error) {
	if len(orders) == 0 {
		return " ORDER BY " + fallback, nil
	}
	terms := make([]string, 0, len(orders))
	for _, o := range orders {
		if !contains(allowed, o.Column) {
			return "", fmt.Errorf("cannot order by %q", o.Column)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		terms = append(terms, o.Column+" "+dir)
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
