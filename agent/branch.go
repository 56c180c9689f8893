package agent

// buildBranchPath composes a hierarchical branch identifier used to label
// events emitted by transferred-to sub-agents. If parent is empty it returns
// child; an empty child returns parent.
func buildBranchPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}
