package risk

// Rule is one step of the cascade.
type Rule struct {
	Name    string
	Match   func(Facts) bool
	Verdict Verdict
}

// Rules is the cascade, highest priority first.
var Rules = []Rule{
	{
		Name:  "failed",
		Match: func(f Facts) bool { return f.Failed },
		Verdict: Verdict{
			Level:          LevelWarning,
			Reason:         "Transaction failed",
			Recommendation: "Check transaction parameters and account balance before retrying.",
		},
	},
	{
		Name:  "high_value_unverified",
		Match: func(f Facts) bool { return f.HighValue() && !f.VerifiedContract },
		Verdict: Verdict{
			Level:          LevelDanger,
			Reason:         "High value transaction with unverified contract",
			Recommendation: "Carefully verify the contract and its audits before proceeding. Consider testing with a smaller amount first.",
		},
	},
	{
		Name:  "complex_high_gas",
		Match: func(f Facts) bool { return f.UnusualGas() && f.ComplexData() },
		Verdict: Verdict{
			Level:          LevelWarning,
			Reason:         "Complex transaction with high gas usage",
			Recommendation: "Make sure you understand all actions this transaction will perform.",
		},
	},
	{
		Name:  "high_gas_price",
		Match: func(f Facts) bool { return f.HighGasPrice() },
		Verdict: Verdict{
			Level:          LevelWarning,
			Reason:         "Unusually high gas price",
			Recommendation: "Consider waiting for gas prices to decrease before making this transaction.",
		},
	},
}

const (
	RuleSafe     = "safe"
	RuleFallback = "fallback"
)

var safeVerdict = Verdict{
	Level:          LevelSafe,
	Reason:         "Standard transaction with no particular risks detected",
	Recommendation: "You can proceed with confidence.",
}

var fallbackVerdict = Verdict{
	Level:          LevelWarning,
	Reason:         "Unable to perform complete risk analysis",
	Recommendation: "Proceed with caution and verify all parameters.",
}

// Assess runs the cascade. It is pure and always returns a verdict.
func Assess(f Facts) Verdict {
	v, _ := assess(f)
	return v
}

func assess(f Facts) (Verdict, string) {
	for _, r := range Rules {
		if r.Match(f) {
			return r.Verdict, r.Name
		}
	}
	return safeVerdict, RuleSafe
}

// Fallback is the conservative verdict used when facts cannot be gathered.
func Fallback() Verdict {
	return fallbackVerdict
}
