package memory

import (
	"flag"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:          "memory",
		Description:   "In-process ledger (lost on exit)",
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open: func(map[string]string) (ledger.Store, func() error, error) {
			s := New()
			return s, s.Close, nil
		},
	})
}
