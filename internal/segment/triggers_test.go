package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEventTriggers(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "equality",
			sql:  `SELECT user_id AS id FROM events WHERE events.name = 'purchase'`,
			want: []string{"purchase"},
		},
		{
			name: "reversed equality",
			sql:  `SELECT user_id AS id FROM events WHERE 'signup' = events.name`,
			want: []string{"signup"},
		},
		{
			name: "in list",
			sql:  `SELECT user_id AS id FROM events WHERE events.name IN ('a', 'b', 'c')`,
			want: []string{"a", "b", "c"},
		},
		{
			name: "join with equality",
			sql: `SELECT u.id FROM users u JOIN events ON events.user_id = u.id
				WHERE events.name = 'purchase' AND events.created_at > '2025-01-01'`,
			want: []string{"purchase"},
		},
		{
			name: "backtick quoted",
			sql:  "SELECT user_id AS id FROM `events` WHERE `events`.`name` = 'click'",
			want: []string{"click"},
		},
		{
			name: "duplicates collapse",
			sql: `SELECT user_id AS id FROM events
				WHERE events.name = 'x' OR events.name = 'x' OR events.name = 'y'`,
			want: []string{"x", "y"},
		},
		{
			name: "no event comparisons",
			sql:  `SELECT id FROM users`,
			want: nil,
		},
		{
			name: "unqualified name column is ignored",
			sql:  `SELECT id FROM users WHERE name = 'bob'`,
			want: nil,
		},
		{
			name: "column compared to column",
			sql:  `SELECT user_id AS id FROM events WHERE events.name = events.name`,
			want: nil,
		},
		{
			name: "unparseable yields empty",
			sql:  `WITH recent AS (SELECT * FROM events) SELECT user_id AS id FROM recent`,
			want: nil,
		},
		{
			name: "garbage yields empty",
			sql:  `not sql at all`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEventTriggers(tt.sql))
		})
	}
}
