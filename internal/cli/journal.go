package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/statewire/internal/store"
)

// JournalOptions selects where dispatch records live.
type JournalOptions struct {
	DB          string
	Redis       string
	RedisPrefix string
	RedisDB     int
}

func (o *JournalOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.DB, "db", "", "path to SQLite journal")
	cmd.Flags().StringVar(&o.Redis, "redis", "", "address of a Redis journal (host:port)")
	cmd.Flags().StringVar(&o.RedisPrefix, "redis-prefix", "statewire:", "key prefix for the Redis journal")
	cmd.Flags().IntVar(&o.RedisDB, "redis-db", 0, "Redis database number")
	cmd.MarkFlagsMutuallyExclusive("db", "redis")
}

func (o *JournalOptions) configured() bool {
	return o.DB != "" || o.Redis != ""
}

// open returns the selected journal. With neither flag set it returns an
// in-memory SQLite journal when allowMemory is true.
func (o *JournalOptions) open(ctx context.Context, allowMemory bool) (store.Journal, error) {
	switch {
	case o.DB != "":
		return store.Open(o.DB)
	case o.Redis != "":
		j := store.NewRedisJournal(o.Redis, "", o.RedisDB, store.WithPrefix(o.RedisPrefix))
		if err := j.Ping(ctx); err != nil {
			_ = j.Close()
			return nil, err
		}
		return j, nil
	case allowMemory:
		return store.Open(":memory:")
	default:
		return nil, fmt.Errorf("a journal is required: use --db or --redis")
	}
}

// findInstance looks an instance up through the journal's listing, which
// every journal supports.
func findInstance(ctx context.Context, j store.Journal, id string) (store.InstanceSummary, error) {
	instances, err := j.ListInstances(ctx)
	if err != nil {
		return store.InstanceSummary{}, err
	}
	for _, inst := range instances {
		if inst.ID == id {
			return inst, nil
		}
	}
	return store.InstanceSummary{}, fmt.Errorf("instance %s not found in journal", id)
}
