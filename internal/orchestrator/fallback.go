package orchestrator

// #region fallback

// FallbackTool is the only fallback target.
const FallbackTool = ToolKnowledge

// NextFallback returns the tool to fall back to, or false when the
// knowledge tool has already been tried and the request must fail.
func NextFallback(attempted []Tool) (Tool, bool) {
	for _, t := range attempted {
		if t == FallbackTool {
			return "", false
		}
	}
	return FallbackTool, true
}

// applyFallback routes st to the fallback tool. It reports false when no
// fallback remains.
func applyFallback(st *RequestState) bool {
	st.NeedsFallback = true
	next, ok := NextFallback(st.AttemptedTools)
	if !ok {
		return false
	}
	st.SelectedTool = next
	st.AttemptedTools = append(st.AttemptedTools, next)
	return true
}

// #endregion
