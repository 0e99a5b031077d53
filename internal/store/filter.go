package store

import (
	"fmt"
	"strings"
)

// conditions accumulates WHERE clauses with driver-specific placeholders.
type conditions struct {
	clauses     []string
	args        []any
	placeholder func(n int) string
}

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// add appends expr with its %s replaced by the next placeholder.
func (c *conditions) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(expr, c.placeholder(len(c.args))))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// page appends ORDER BY, LIMIT and OFFSET.
func (c *conditions) page(orderBy string, limit, offset int) string {
	q := " ORDER BY " + orderBy
	c.args = append(c.args, listLimit(limit))
	q += " LIMIT " + c.placeholder(len(c.args))
	if offset > 0 {
		c.args = append(c.args, offset)
		q += " OFFSET " + c.placeholder(len(c.args))
	}
	return q
}

func itemConditions(f OutputFilter, ph func(int) string) *conditions {
	c := &conditions{placeholder: ph}
	if f.ItemCode != "" {
		c.add("item_code = %s", f.ItemCode)
	}
	return c
}

func costConditions(f OutputFilter, ph func(int) string) *conditions {
	c := itemConditions(f, ph)
	if f.Region != "" {
		c.add("region = %s", f.Region)
	}
	if f.Supplier != "" {
		c.add("supplier = %s", f.Supplier)
	}
	return c
}

func anomalyConditions(f OutputFilter, ph func(int) string) *conditions {
	c := itemConditions(f, ph)
	if f.FlaggedOnly {
		c.add("anomaly_flag = %s", true)
	}
	return c
}
