package cassandra

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// SessionConfig describes how to reach the cluster.
type SessionConfig struct {
	Hosts           []string
	Keyspace        string
	LocalDC         string
	ProtocolVersion int
	Username        string
	Password        string
	Consistency     string
	ConnectTimeout  time.Duration
	Timeout         time.Duration
}

// Connect opens a session against the keyspace.
func Connect(cfg SessionConfig) (*gocql.Session, error) {
	if len(cfg.Hosts) == 0 {
		return nil, errors.New("cassandra: hosts required")
	}
	if cfg.Keyspace == "" {
		return nil, errors.New("cassandra: keyspace required")
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	if cfg.ProtocolVersion > 0 {
		cluster.ProtoVersion = cfg.ProtocolVersion
	}
	localDC := cfg.LocalDC
	if localDC == "" {
		localDC = "datacenter1"
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(localDC))
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.Consistency != "" {
		consistency, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("cassandra: %w", err)
		}
		cluster.Consistency = consistency
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra: connect %v: %w", cfg.Hosts, err)
	}
	return session, nil
}
