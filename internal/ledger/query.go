package ledger

import (
	"strconv"
	"strings"
)

// Statement is a parameterized query using '?' placeholders.
type Statement struct {
	SQL  string
	Args []any
}

// Dollar rewrites the '?' placeholders as $1, $2, ... for PostgreSQL. The
// generated statements never contain '?' inside string literals.
func (s Statement) Dollar() Statement {
	var b strings.Builder
	n := 0
	for _, r := range s.SQL {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return Statement{SQL: b.String(), Args: s.Args}
}

const (
	balanceDims = `b.fiscal_year, b.month, b.unit_id, COALESCE(u.name, '') AS unit_name,
       substr(b.nature_code, 1, 1) AS category_code, substr(b.nature_code, 2, 1) AS group_code,
       b.nature_code, MAX(b.nature_name) AS nature_name`
	balanceGroupBy = `b.fiscal_year, b.month, b.unit_id, u.name, b.nature_code`
	balanceFrom    = `FROM ledger_balance b
LEFT JOIN managing_unit u ON u.unit_id = b.unit_id`
)

func filters(q Query, alias string) ([]string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(q.FiscalYears) > 0 {
		marks := make([]string, len(q.FiscalYears))
		for i, y := range q.FiscalYears {
			marks[i] = "?"
			args = append(args, y)
		}
		conds = append(conds, alias+"fiscal_year IN ("+strings.Join(marks, ", ")+")")
	}
	if q.MonthLimit > 0 {
		conds = append(conds, alias+"month <= ?")
		args = append(args, q.MonthLimit)
	}
	if q.UnitID != "" {
		conds = append(conds, alias+"unit_id = ?")
		args = append(args, q.UnitID)
	}
	return conds, args
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, "\n  AND ")
}

func sums(ranges []AccountRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = "       " + r.sumExpr("b.account_code", "b.debit", "b.credit")
	}
	return strings.Join(parts, ",\n")
}

func columns(ranges []AccountRange) []string {
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = r.Column
	}
	return out
}

func asText(cols []string, sum bool) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		expr := c
		if sum {
			expr = "SUM(" + c + ")"
		}
		parts[i] = "CAST(" + expr + " AS TEXT) AS " + c
	}
	return strings.Join(parts, ", ")
}

// expenseCTE sums the expense accounts per month, unit, nature, function,
// subfunction, program and source.
func expenseCTE(q Query) (string, []any) {
	conds, args := filters(q, "b.")
	conds = append(conds, anyOf(ExpenseAccounts, "b.account_code"))
	sql := `SELECT ` + balanceDims + `,
       b.function_code, b.subfunction_code, b.program_code, b.source_code,
` + sums(ExpenseAccounts) + `
` + balanceFrom + `
` + whereClause(conds) + `
GROUP BY ` + balanceGroupBy + `, b.function_code, b.subfunction_code, b.program_code, b.source_code`
	return sql, args
}

// ExtractStatement selects the expense extract.
func ExtractStatement(q Query) Statement {
	cte, args := expenseCTE(q)
	sql := `WITH x AS (
` + cte + `
)
SELECT fiscal_year, month, unit_id, unit_name, category_code, group_code, nature_code, nature_name,
       function_code, subfunction_code, program_code, source_code,
       ` + asText(columns(ExpenseAccounts), false) + `
FROM x
ORDER BY fiscal_year, month, unit_id, nature_code, function_code, subfunction_code, program_code, source_code`
	return Statement{SQL: sql, Args: args}
}

// LevelsStatement selects the expense amounts summed at category, group and
// detail level, per month and unit.
func LevelsStatement(q Query) Statement {
	cte, args := expenseCTE(q)
	amounts := asText(columns(ExpenseAccounts), true)
	level := func(name, group, nature, natureName, groupBy string) string {
		return `SELECT '` + name + `' AS level, fiscal_year, month, unit_id, MAX(unit_name) AS unit_name, category_code, ` +
			group + ` AS group_code, ` + nature + ` AS nature_code, ` + natureName + ` AS nature_name,
       ` + amounts + `
FROM x
GROUP BY fiscal_year, month, unit_id, category_code` + groupBy
	}

	sql := `WITH x AS (
` + cte + `
)
` + level("CATEGORY", "''", "''", "''", "") + `
UNION ALL
` + level("GROUP", "group_code", "''", "''", ", group_code") + `
UNION ALL
` + level("DETAIL", "group_code", "nature_code", "MAX(nature_name)", ", group_code, nature_code") + `
ORDER BY fiscal_year, month, unit_id, category_code, group_code, nature_code`
	return Statement{SQL: sql, Args: args}
}

// RevenueStatement selects the revenue forecast and realization per nature.
func RevenueStatement(q Query) Statement {
	conds, args := filters(q, "b.")
	conds = append(conds, anyOf(RevenueAccounts, "b.account_code"))
	sql := `WITH x AS (
SELECT ` + balanceDims + `,
` + sums(RevenueAccounts) + `
` + balanceFrom + `
` + whereClause(conds) + `
GROUP BY ` + balanceGroupBy + `
)
SELECT fiscal_year, month, unit_id, unit_name, category_code, group_code, nature_code, nature_name,
       ` + asText(columns(RevenueAccounts), false) + `
FROM x
ORDER BY fiscal_year, month, unit_id, nature_code`
	return Statement{SQL: sql, Args: args}
}

// CreditsStatement selects the additional-credit view.
func CreditsStatement(q Query) Statement {
	conds, args := filters(q, "")
	sql := `SELECT fiscal_year, month, unit_id, category_code, group_code,
       ` + asText(CreditKinds, false) + `
FROM vw_additional_credits
` + whereClause(conds) + `
ORDER BY fiscal_year, month, unit_id, category_code, group_code`
	return Statement{SQL: sql, Args: args}
}

// UnitsStatement selects the registered managing units.
func UnitsStatement() Statement {
	return Statement{SQL: `SELECT unit_id, name AS unit_name FROM managing_unit ORDER BY unit_id`}
}
