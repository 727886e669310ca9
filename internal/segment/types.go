package segment

// Segment is a declarative predicate over users: a SQL query whose
// result set's id column is the matching user population.
type Segment struct {
	ID        string `json:"id"`
	Evaluator string `json:"evaluator"`
}

// Changes reports a membership diff produced by one evaluation.
type Changes struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Total   int      `json:"total"`
}

// Empty reports whether the evaluation changed nothing.
func (c *Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// AffectedUsers returns added ∪ removed.
func (c *Changes) AffectedUsers() []string {
	users := make([]string, 0, len(c.Added)+len(c.Removed))
	users = append(users, c.Added...)
	users = append(users, c.Removed...)
	return users
}
