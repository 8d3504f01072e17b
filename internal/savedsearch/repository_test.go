package savedsearch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListByOwnerSQLOrdersNewestFirst(t *testing.T) {
	sql := strings.Join(strings.Fields(listByOwnerSQL), " ")
	assert.Contains(t, sql, "WHERE user_id = $1")
	assert.True(t, strings.HasSuffix(sql, "ORDER BY created_at DESC, id"), sql)
}
