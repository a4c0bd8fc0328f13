package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sign tells how a ledger balance turns into a report amount.
type Sign int

const (
	DebitMinusCredit Sign = iota
	CreditMinusDebit
)

// AccountRange maps a span of ledger account codes to a report column.
// Codes, when set, lists individual accounts instead of the From..To span.
type AccountRange struct {
	Column string
	From   int64
	To     int64
	Codes  []int64
	Sign   Sign
}

// ExpenseAccounts maps the budget-execution accounts to the expense columns.
var ExpenseAccounts = []AccountRange{
	{Column: ColInitialAllocation, From: 522110000, To: 522119999, Sign: DebitMinusCredit},
	{Column: ColAdditionalAllocation, From: 522120000, To: 522129999, Sign: DebitMinusCredit},
	{Column: ColAllocationCancellation, From: 522150000, To: 522159999, Sign: DebitMinusCredit},
	{Column: ColCancellationRemanagement, From: 522190000, To: 522199999, Sign: DebitMinusCredit},
	{Column: ColCommitted, From: 622130000, To: 622139999, Sign: CreditMinusDebit},
	{Column: ColLiquidated, Codes: []int64{622130300, 622130400, 622130700}, Sign: CreditMinusDebit},
	{Column: ColPaid, Codes: []int64{622920104}, Sign: CreditMinusDebit},
}

// RevenueAccounts maps the revenue forecast and realization accounts.
var RevenueAccounts = []AccountRange{
	{Column: ColInitialForecast, From: 521110000, To: 521119999, Sign: DebitMinusCredit},
	{Column: ColUpdatedForecast, From: 521110000, To: 521219999, Sign: DebitMinusCredit},
	{Column: ColRealized, From: 621210000, To: 621399999, Sign: CreditMinusDebit},
}

// Contains reports whether account falls in the range.
func (a AccountRange) Contains(account int64) bool {
	if len(a.Codes) > 0 {
		for _, c := range a.Codes {
			if c == account {
				return true
			}
		}
		return false
	}
	return account >= a.From && account <= a.To
}

// predicate renders the SQL condition selecting the range's accounts.
func (a AccountRange) predicate(col string) string {
	if len(a.Codes) == 0 {
		return fmt.Sprintf("%s BETWEEN %d AND %d", col, a.From, a.To)
	}
	codes := make([]string, len(a.Codes))
	for i, c := range a.Codes {
		codes[i] = fmt.Sprint(c)
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(codes, ", "))
}

func (a AccountRange) amount(debit, credit string) string {
	if a.Sign == CreditMinusDebit {
		return credit + " - " + debit
	}
	return debit + " - " + credit
}

// sumExpr renders SUM(CASE WHEN <range> THEN <signed amount> ELSE 0 END) AS <column>.
func (a AccountRange) sumExpr(account, debit, credit string) string {
	return fmt.Sprintf("SUM(CASE WHEN %s THEN %s ELSE 0 END) AS %s",
		a.predicate(account), a.amount(debit, credit), a.Column)
}

// anyOf renders the disjunction of every range, used to narrow the scan.
func anyOf(ranges []AccountRange, account string) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.predicate(account)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// SignedAmount applies the range's sign to a ledger balance.
func (a AccountRange) SignedAmount(debit, credit decimal.Decimal) decimal.Decimal {
	if a.Sign == CreditMinusDebit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}
