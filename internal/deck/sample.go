package deck

import (
	"strings"

	"github.com/starford/dailymail/internal/parser"
)

// LearnedToken is the completed-column value that marks a row as learned.
const LearnedToken = "TRUE"

// Rand is the random source used for sampling. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// IsLearned reports whether row has column set to LearnedToken, ignoring case
// and surrounding whitespace. A missing column means not learned.
func IsLearned(row parser.Row, column string) bool {
	v, ok := row.Get(column)
	if !ok {
		return false
	}
	return strings.ToUpper(strings.TrimSpace(v)) == LearnedToken
}

// Sample draws min(n, unlearned) rows uniformly without replacement from the
// rows that are not learned according to column. The input slice is not
// modified and the order of the result is random.
func Sample(rows []parser.Row, column string, n int, rng Rand) []parser.Row {
	if n <= 0 {
		return nil
	}

	pool := make([]parser.Row, 0, len(rows))
	for _, r := range rows {
		if !IsLearned(r, column) {
			pool = append(pool, r)
		}
	}

	k := min(n, len(pool))
	// Partial Fisher-Yates: after step i, pool[:i+1] is a uniform sample.
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k:k]
}
