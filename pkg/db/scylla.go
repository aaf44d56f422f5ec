package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect scylla %v: %w", hosts, err)
	}
	return &Session{Session: session}, nil
}

// scyllaTables is the mailbox schema. messages is partitioned by
// conversation and clustered by snowflake id, so partition order is send
// order. undelivered_messages is the per-recipient inbox drained on connect;
// a row is removed once its message is delivered.
var scyllaTables = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_key text,
		id bigint,
		from_user text,
		to_user text,
		kind text,
		content text,
		payload text,
		sent_at timestamp,
		delivered_at timestamp,
		PRIMARY KEY (conversation_key, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS messages_by_id (
		id bigint PRIMARY KEY,
		conversation_key text,
		to_user text
	)`,
	`CREATE TABLE IF NOT EXISTS undelivered_messages (
		to_user text,
		id bigint,
		conversation_key text,
		PRIMARY KEY (to_user, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		last_message text,
		last_message_type text,
		last_message_from text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`,
}

// MigrateScylla creates the keyspace and mailbox tables if they are missing.
func MigrateScylla(hosts []string, keyspace string) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return err
	}
	err = sys.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
		keyspace,
	)).Exec()
	sys.Close()
	if err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}

	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, stmt := range scyllaTables {
		if err := session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

var scyllaTableNames = []string{"messages", "messages_by_id", "undelivered_messages", "user_conversations"}

// DropScylla removes the mailbox tables. Development use only.
func DropScylla(hosts []string, keyspace string) error {
	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, table := range scyllaTableNames {
		if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	return nil
}
