// Package mysql implements a native client for the MySQL/MariaDB
// wire protocol: packet framing, handshake and authentication, text
// and binary query execution, prepared statements, transactions, and
// a bounded connection pool. It speaks the protocol directly over
// net.Conn rather than going through database/sql.
package mysql
