// Package classification holds the static budget classification registries
// used to order and name the nodes of the expense and revenue reports.
package classification

import (
	"fmt"
	"slices"
	"strings"
)

// Node is a registry entry. Groups have no children: detail codes come from the data.
type Node struct {
	Code     string
	Name     string
	Children []Node
}

// Registry is an immutable two-level classification: categories and their groups.
type Registry struct {
	name       string
	categories []Node
	index      map[string]int
}

func newRegistry(name string, categories []Node) *Registry {
	r := &Registry{name: name, categories: categories, index: make(map[string]int, len(categories))}
	for i, c := range categories {
		if c.Code == "" {
			panic(fmt.Sprintf("classification: %s registry has a category without code", name))
		}
		if _, dup := r.index[c.Code]; dup {
			panic(fmt.Sprintf("classification: %s registry has duplicate category %q", name, c.Code))
		}
		seen := make(map[string]bool, len(c.Children))
		for _, g := range c.Children {
			if seen[g.Code] {
				panic(fmt.Sprintf("classification: %s registry has duplicate group %s.%s", name, c.Code, g.Code))
			}
			seen[g.Code] = true
		}
		r.index[c.Code] = i
	}
	return r
}

// Name identifies the registry in logs.
func (r *Registry) Name() string { return r.name }

// Categories returns the categories in registry order.
func (r *Registry) Categories() []Node {
	return slices.Clone(r.categories)
}

// Category looks up a category by code.
func (r *Registry) Category(code string) (Node, bool) {
	i, ok := r.index[code]
	if !ok {
		return Node{}, false
	}
	return r.categories[i], true
}

// Groups returns the registered groups of a category, in registry order.
func (r *Registry) Groups(category string) []Node {
	c, ok := r.Category(category)
	if !ok {
		return nil
	}
	return slices.Clone(c.Children)
}

// CategoryName returns the registered name of a category. Unknown codes fall
// back to the label found in the data and then to the code itself.
func (r *Registry) CategoryName(code, fallback string) string {
	if c, ok := r.Category(code); ok {
		return c.Name
	}
	return orCode(fallback, code)
}

// GroupName returns the registered name of a group within a category, with the
// same fallback rules as CategoryName.
func (r *Registry) GroupName(category, group, fallback string) string {
	if c, ok := r.Category(category); ok {
		for _, g := range c.Children {
			if g.Code == group {
				return g.Name
			}
		}
	}
	return orCode(fallback, group)
}

// OrderCategories returns present codes in registry order followed by the
// codes the registry does not know, sorted ascending. Registered codes absent
// from present are omitted.
func (r *Registry) OrderCategories(present map[string]bool) []string {
	return order(r.categories, present)
}

// OrderGroups is OrderCategories for the groups of one category.
func (r *Registry) OrderGroups(category string, present map[string]bool) []string {
	c, _ := r.Category(category)
	return order(c.Children, present)
}

func order(registered []Node, present map[string]bool) []string {
	out := make([]string, 0, len(present))
	known := make(map[string]bool, len(registered))
	for _, n := range registered {
		known[n.Code] = true
		if present[n.Code] {
			out = append(out, n.Code)
		}
	}
	var extra []string
	for code := range present {
		if !known[code] {
			extra = append(extra, code)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

func orCode(fallback, code string) string {
	if s := strings.TrimSpace(fallback); s != "" {
		return s
	}
	return code
}
