package progress

// Achievement is an immutable catalog entry.
type Achievement struct {
	ID          string
	Name        string
	Description string
	XPReward    uint64
	Earned      func(p *UserProgress, ctx ActionContext) bool
}

// Catalog is evaluated in this order; newly earned achievements are
// appended in the same order.
var Catalog = []Achievement{
	{"FIRST_ANALYSIS", "First Steps", "Analyzed your first transaction", 100,
		func(p *UserProgress, _ ActionContext) bool { return p.TransactionsAnalyzed == 1 }},
	{"TRANSACTION_EXPLORER", "Transaction Explorer", "Analyzed 10 transactions", 250,
		func(p *UserProgress, _ ActionContext) bool { return p.TransactionsAnalyzed == 10 }},
	{"BLOCKCHAIN_DETECTIVE", "Blockchain Detective", "Analyzed 100 transactions", 1000,
		func(p *UserProgress, _ ActionContext) bool { return p.TransactionsAnalyzed == 100 }},
	{"RISING_ANALYST", "Rising Analyst", "Reached level 10", 500,
		func(p *UserProgress, _ ActionContext) bool { return p.Level == 10 }},
	{"EXPERT_ANALYST", "Expert Analyst", "Reached level 50", 2000,
		func(p *UserProgress, _ ActionContext) bool { return p.Level == 50 }},
	{"COMPLEXITY_MASTER", "Complexity Master", "Analyzed a complex smart contract interaction", 300,
		func(_ *UserProgress, c ActionContext) bool { return c.ComplexTransaction }},
	{"WHALE_WATCHER", "Whale Watcher", "Analyzed a high-value transaction (>1 ETH)", 400,
		func(_ *UserProgress, c ActionContext) bool { return c.HighValueTransaction }},
	{"RISK_DETECTOR", "Risk Detector", "Successfully identified a high-risk transaction", 350,
		func(p *UserProgress, c ActionContext) bool { return c.RiskLevel == "danger" && p.Level >= 30 }},
	{"DEDICATED_ANALYST", "Dedicated Analyst", "Analyzed transactions for 7 consecutive days", 700,
		func(_ *UserProgress, c ActionContext) bool { return c.ConsecutiveDays >= 7 }},
	{"CONTRACT_CONNOISSEUR", "Contract Connoisseur", "Analyzed transactions involving 10 different smart contracts", 600,
		func(_ *UserProgress, c ActionContext) bool { return c.UniqueContracts >= 10 }},
	{"DEFI_EXPLORER", "DeFi Explorer", "Analyzed your first DeFi protocol interaction", 450,
		func(_ *UserProgress, c ActionContext) bool { return c.DefiInteraction }},
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Achievement, bool) {
	for _, a := range Catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}
