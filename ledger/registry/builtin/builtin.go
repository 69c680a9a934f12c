// Package builtin links every ledger backend shipped with this module.
package builtin

import (
	_ "xdao.co/calm/ledger/badgerdb"
	_ "xdao.co/calm/ledger/memory"
	_ "xdao.co/calm/ledger/redisdb"
)
