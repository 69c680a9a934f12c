package badgerdb

import (
	"flag"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/registry"
)

var flagDir string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "Embedded Badger database (directory)",
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "badger-dir", "", "Badger ledger directory (for --ledger=badger; empty = in-memory)")
		},
		Open: func(config map[string]string) (ledger.Store, func() error, error) {
			s, err := Open(registry.Value(config, "badger-dir", flagDir))
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
