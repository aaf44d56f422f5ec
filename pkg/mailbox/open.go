package mailbox

import (
	"context"
	"fmt"

	"github.com/mahaj/chat-delivery/pkg/config"
	"github.com/mahaj/chat-delivery/pkg/db"
	"github.com/mahaj/chat-delivery/pkg/snowflake"
)

// Open builds the Mailbox selected by cfg.MailboxBackend. The returned
// close function releases the underlying connections.
func Open(ctx context.Context, cfg *config.Config) (Mailbox, func(), error) {
	switch cfg.MailboxBackend {
	case "memory":
		return NewMemory(), func() {}, nil

	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgres(pool), pool.Close, nil

	case "scylla":
		node, err := snowflake.NewNode(cfg.NodeID)
		if err != nil {
			return nil, nil, err
		}
		session, err := db.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			return nil, nil, err
		}
		return NewScylla(session, node), session.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown mailbox backend %q", cfg.MailboxBackend)
}
