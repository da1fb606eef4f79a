package orchestrator

// #region constants

// DefaultConfidenceThreshold is the intent confidence at which the router
// trusts the classifier's label when no corpus is loaded.
const DefaultConfidenceThreshold = 0.7

// #endregion

// #region router

// Router is the deterministic tool selection policy.
type Router struct {
	threshold float64
}

// NewRouter creates a router. threshold <= 0 uses DefaultConfidenceThreshold.
func NewRouter(threshold float64) *Router {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Router{threshold: threshold}
}

// Route picks a tool. Rules, first match wins:
//  1. a non-empty corpus and any intent but search routes to retrieval
//  2. confidence >= threshold maps the intent to its tool
//  3. otherwise retrieval, leaving the relevance gate to fall back
func (r *Router) Route(intent Intent, confidence float64, corpusSize int) Tool {
	if corpusSize > 0 && intent != IntentSearch {
		return ToolRetrieval
	}
	if confidence >= r.threshold {
		switch intent {
		case IntentDocument:
			return ToolRetrieval
		case IntentKnowledge:
			return ToolKnowledge
		case IntentSearch:
			return ToolSearch
		}
	}
	return ToolRetrieval
}

// Apply routes st and records the decision in SelectedTool and AttemptedTools.
func (r *Router) Apply(st *RequestState) Tool {
	tool := r.Route(st.Intent, st.IntentConfidence, st.CorpusSize)
	st.SelectedTool = tool
	st.AttemptedTools = append(st.AttemptedTools, tool)
	return tool
}

// #endregion
