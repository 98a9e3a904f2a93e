package policy

// BobMode selects how a requested bob flag constrains a query.
type BobMode int

const (
	// BobStrict requires policy.bob to equal the requested value.
	BobStrict BobMode = iota
	// BobInclusive requires Y when Y is requested and applies no constraint for N.
	BobInclusive
)

func (m BobMode) String() string {
	if m == BobInclusive {
		return "inclusive"
	}
	return "strict"
}

// Constraint returns the flag a policy must carry, or nil for no constraint.
func (m BobMode) Constraint(requested Bob) *Bob {
	switch {
	case requested == "":
		return nil
	case m == BobInclusive && requested == BobNo:
		return nil
	}
	b := requested
	return &b
}

// ProcessType labels which business pipeline a rollup covers.
type ProcessType string

const (
	ProcessBob          ProcessType = "bob"
	ProcessUnderwriting ProcessType = "underwriting"
	ProcessCombined     ProcessType = "combined"
)

// ProcessTypeFor reports the pipeline a request targets. The label follows the
// requested flag regardless of mode.
func ProcessTypeFor(requested Bob) ProcessType {
	switch requested {
	case BobYes:
		return ProcessBob
	case BobNo:
		return ProcessUnderwriting
	}
	return ProcessCombined
}
