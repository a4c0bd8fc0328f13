package classification

var expense = newRegistry("expense", []Node{
	{Code: "3", Name: "DESPESAS CORRENTES", Children: []Node{
		{Code: "1", Name: "PESSOAL E ENCARGOS SOCIAIS"},
		{Code: "2", Name: "JUROS E ENCARGOS DA DÍVIDA"},
		{Code: "3", Name: "OUTRAS DESPESAS CORRENTES"},
	}},
	{Code: "4", Name: "DESPESAS DE CAPITAL", Children: []Node{
		{Code: "4", Name: "INVESTIMENTOS"},
		{Code: "5", Name: "INVERSÕES FINANCEIRAS"},
		{Code: "6", Name: "AMORTIZAÇÃO DA DÍVIDA"},
	}},
	{Code: "9", Name: "RESERVA DE CONTINGÊNCIA", Children: []Node{
		{Code: "9", Name: "RESERVA DE CONTINGÊNCIA"},
	}},
})

var (
	currentOrigins = []Node{
		{Code: "1", Name: "IMPOSTOS, TAXAS E CONTRIBUIÇÕES DE MELHORIA"},
		{Code: "2", Name: "RECEITA DE CONTRIBUIÇÕES"},
		{Code: "3", Name: "RECEITA PATRIMONIAL"},
		{Code: "4", Name: "RECEITA AGROPECUÁRIA"},
		{Code: "5", Name: "RECEITA INDUSTRIAL"},
		{Code: "6", Name: "RECEITA DE SERVIÇOS"},
		{Code: "7", Name: "TRANSFERÊNCIAS CORRENTES"},
		{Code: "9", Name: "OUTRAS RECEITAS CORRENTES"},
	}
	capitalOrigins = []Node{
		{Code: "1", Name: "OPERAÇÕES DE CRÉDITO"},
		{Code: "2", Name: "ALIENAÇÃO DE BENS"},
		{Code: "3", Name: "AMORTIZAÇÃO DE EMPRÉSTIMOS"},
		{Code: "4", Name: "TRANSFERÊNCIAS DE CAPITAL"},
		{Code: "5", Name: "OUTRAS RECEITAS DE CAPITAL"},
	}
)

// Intra-budgetary categories 7 and 8 reuse the origins of 1 and 2.
var revenue = newRegistry("revenue", []Node{
	{Code: "1", Name: "RECEITAS CORRENTES", Children: currentOrigins},
	{Code: "2", Name: "RECEITAS DE CAPITAL", Children: capitalOrigins},
	{Code: "7", Name: "RECEITAS CORRENTES INTRA-ORÇAMENTÁRIAS", Children: currentOrigins},
	{Code: "8", Name: "RECEITAS DE CAPITAL INTRA-ORÇAMENTÁRIAS", Children: capitalOrigins},
	{Code: "9", Name: "DEDUÇÕES DA RECEITA"},
})

// Expense returns the expense registry: economic categories and expenditure groups.
func Expense() *Registry { return expense }

// Revenue returns the revenue registry: economic categories and origins.
func Revenue() *Registry { return revenue }
