package aggregate

import (
	"sort"

	"orcamento/internal/classification"
	"orcamento/internal/core"
)

// unclassifiedName labels nodes whose code is missing from the data.
const unclassifiedName = "NÃO CLASSIFICADO"

// node accumulates current and prior amounts for one classification code.
// Children are keyed by code; the registry decides their order.
type node[A any] struct {
	label          string
	current, prior A
	children       map[string]*node[A]
}

func newNode[A any]() *node[A] {
	return &node[A]{children: map[string]*node[A]{}}
}

// child returns the child for code, creating it. The first non-empty label
// seen in the data is kept.
func (n *node[A]) child(code, label string) *node[A] {
	c, ok := n.children[code]
	if !ok {
		c = newNode[A]()
		n.children[code] = c
	}
	if c.label == "" {
		c.label = label
	}
	return c
}

func (n *node[A]) add(current bool, a A, plus func(A, A) A) {
	if current {
		n.current = plus(n.current, a)
	} else {
		n.prior = plus(n.prior, a)
	}
}

func (n *node[A]) codes() map[string]bool {
	out := make(map[string]bool, len(n.children))
	for code := range n.children {
		out[code] = true
	}
	return out
}

func sortedCodes[A any](n *node[A]) []string {
	out := make([]string, 0, len(n.children))
	for code := range n.children {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// index is the category -> group -> detail accumulation tree.
type index[A any] struct {
	root *node[A]
	plus func(A, A) A
}

func newIndex[A any](plus func(A, A) A) *index[A] {
	return &index[A]{root: newNode[A](), plus: plus}
}

// path returns the category, group and detail nodes for c, creating them.
func (ix *index[A]) path(c core.Classification) (cat, grp, det *node[A]) {
	cat = ix.root.child(c.CategoryCode, c.CategoryName)
	grp = cat.child(c.GroupCode, c.GroupName)
	det = grp.child(c.NatureCode, c.NatureName)
	return cat, grp, det
}

// addAll adds a at every level of c's path.
func (ix *index[A]) addAll(c core.Classification, current bool, a A) {
	cat, grp, det := ix.path(c)
	cat.add(current, a, ix.plus)
	grp.add(current, a, ix.plus)
	det.add(current, a, ix.plus)
}

// addLevels is addAll without the detail level.
func (ix *index[A]) addLevels(c core.Classification, current bool, a A) {
	cat := ix.root.child(c.CategoryCode, c.CategoryName)
	grp := cat.child(c.GroupCode, c.GroupName)
	cat.add(current, a, ix.plus)
	grp.add(current, a, ix.plus)
}

// addAt adds a at one level only, marking the ancestors present.
func (ix *index[A]) addAt(level core.Level, c core.Classification, current bool, a A) {
	cat := ix.root.child(c.CategoryCode, c.CategoryName)
	switch level {
	case core.LevelCategory:
		cat.add(current, a, ix.plus)
	case core.LevelGroup:
		cat.child(c.GroupCode, c.GroupName).add(current, a, ix.plus)
	case core.LevelDetail:
		cat.child(c.GroupCode, c.GroupName).child(c.NatureCode, c.NatureName).add(current, a, ix.plus)
	}
}

// builder turns an accumulated node into an output node N.
type builder[A, N any] func(level core.Level, id, name string, n *node[A], children []N) N

// walk visits categories and groups in registry order (codes unknown to the
// registry follow, ascending) and details in ascending code order. Only codes
// present in the data are visited.
func walk[A, N any](reg *classification.Registry, ix *index[A], build builder[A, N]) []N {
	cats := reg.OrderCategories(ix.root.codes())
	out := make([]N, 0, len(cats))
	for _, catCode := range cats {
		cat := ix.root.children[catCode]

		groupCodes := reg.OrderGroups(catCode, cat.codes())
		groups := make([]N, 0, len(groupCodes))
		for _, grpCode := range groupCodes {
			grp := cat.children[grpCode]

			detailCodes := sortedCodes(grp)
			details := make([]N, 0, len(detailCodes))
			for _, natCode := range detailCodes {
				det := grp.children[natCode]
				details = append(details, build(core.LevelDetail, natCode, label(det.label, natCode), det, []N{}))
			}
			groups = append(groups, build(core.LevelGroup, catCode+"."+grpCode,
				label(reg.GroupName(catCode, grpCode, grp.label), grpCode), grp, details))
		}
		out = append(out, build(core.LevelCategory, catCode,
			label(reg.CategoryName(catCode, cat.label), catCode), cat, groups))
	}
	return out
}

func label(name, code string) string {
	if name != "" {
		return name
	}
	if code != "" {
		return code
	}
	return unclassifiedName
}
