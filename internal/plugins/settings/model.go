// Package settings lets the game master connect the server to a remote
// document store at runtime, see whether it is online, and disconnect it.
// The connection string is remembered in the local cache so the server
// reconnects after a restart.
package settings

import (
	"time"

	"github.com/go-sql-driver/mysql"
)

// remoteStoreID is the settings document holding the remote connection.
const remoteStoreID = "remote_store"

// StoreSettings is the saved remote store connection.
type StoreSettings struct {
	DSN     string    `json:"dsn"`
	SavedAt time.Time `json:"saved_at"`
}

// StoreStatus is what the settings screen shows. The password is never
// included.
type StoreStatus struct {
	Online      bool       `json:"online"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Address     string     `json:"address,omitempty"`
	Database    string     `json:"database,omitempty"`
	User        string     `json:"user,omitempty"`
}

// ConnectRequest is the body of POST /settings/store/connect.
type ConnectRequest struct {
	DSN string `json:"dsn"`
}

// describe fills the connection fields of st from a parsed DSN.
func describe(st *StoreStatus, cfg *mysql.Config) {
	if cfg == nil {
		return
	}
	st.Address = cfg.Addr
	st.Database = cfg.DBName
	st.User = cfg.User
}
