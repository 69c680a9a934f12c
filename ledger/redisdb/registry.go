package redisdb

import (
	"context"
	"flag"
	"fmt"
	"time"

	"xdao.co/calm/ledger"
	"xdao.co/calm/ledger/registry"
)

var (
	flagURL    string
	flagPrefix string
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "redis",
		Description: "Shared Redis ledger (WATCH/MULTI transactions)",
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagURL, "redis-url", "", "Redis URL (for --ledger=redis), e.g. redis://localhost:6379/0")
			fs.StringVar(&flagPrefix, "redis-prefix", DefaultPrefix, "Key prefix (for --ledger=redis)")
		},
		Open: func(config map[string]string) (ledger.Store, func() error, error) {
			url := registry.Value(config, "redis-url", flagURL)
			if url == "" {
				return nil, nil, fmt.Errorf("missing --redis-url")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s, err := Open(ctx, url, registry.Value(config, "redis-prefix", flagPrefix))
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
