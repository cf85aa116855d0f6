package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{name: "plain", query: "SELECT * FROM vaults WHERE owner = ? AND mint = ?", expected: "SELECT * FROM vaults WHERE owner = $1 AND mint = $2"},
		{name: "quoted question mark", query: "SELECT '?' FROM vaults WHERE owner = ?", expected: "SELECT '?' FROM vaults WHERE owner = $1"},
		{name: "escaped quote", query: "SELECT 'it''s ?' WHERE a = ?", expected: "SELECT 'it''s ?' WHERE a = $1"},
		{name: "none", query: "SELECT 1", expected: "SELECT 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, rebindPostgresPlaceholders(tc.query))
		})
	}
}

func TestNormalizePagination(t *testing.T) {
	limit, offset := normalizePagination(0, -3)
	assert.Equal(t, defaultPageLimit, limit)
	assert.Equal(t, 0, offset)

	limit, offset = normalizePagination(1000, 10)
	assert.Equal(t, maxPageLimit, limit)
	assert.Equal(t, 10, offset)
}

func TestBuildListVaultsQuery(t *testing.T) {
	query, args, limit, offset := buildListVaultsQuery(VaultFilter{Owner: " owner1 ", Limit: 5, Offset: 2})
	assert.Contains(t, query, "owner = ?")
	assert.NotContains(t, query, "mint = ?")
	assert.Equal(t, []any{"owner1", 5, 2}, args)
	assert.Equal(t, 5, limit)
	assert.Equal(t, 2, offset)

	query, args, _, _ = buildListVaultsQuery(VaultFilter{Owner: "o", Mint: "m"})
	require.Len(t, args, 4)
	assert.Equal(t, []any{"o", "m", defaultPageLimit, 0}, args)

	rebound := rebindPostgresPlaceholders(query)
	assert.True(t, strings.Contains(rebound, "owner = $1") && strings.Contains(rebound, "mint = $2"))
	assert.Contains(t, rebound, "LIMIT $3 OFFSET $4")
}
