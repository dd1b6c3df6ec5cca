package hybrid

// Strategy represents the way a page is fetched
type Strategy int

const (
	// StrategyStatic uses only the static HTML response
	StrategyStatic Strategy = iota

	// StrategyDynamic uses full browser rendering
	StrategyDynamic
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategyStatic:
		return "static"
	case StrategyDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// DetermineStrategy decides how to fetch a page from its static response
func DetermineStrategy(html, visibleText string, scriptCount int) Strategy {
	if NeedsJavaScript(html, visibleText, scriptCount) {
		return StrategyDynamic
	}
	return StrategyStatic
}
