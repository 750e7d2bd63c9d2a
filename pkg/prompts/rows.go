package prompts

// EntityRow is one resolved entity offered to the traversal prompt.
type EntityRow struct {
	ID   string `csv:"id"`
	Name string `csv:"name"`
	Type string `csv:"type"`
}

// EvidenceRow is one numbered evidence item. Index is the citation number.
type EvidenceRow struct {
	Index   int    `csv:"index"`
	Snippet string `csv:"snippet"`
	Source  string `csv:"source"`
}

// PathRow is one ranked reasoning path.
type PathRow struct {
	Rank   int     `csv:"rank"`
	Path   string  `csv:"path"`
	Hops   int     `csv:"hops"`
	Weight float64 `csv:"weight"`
}
