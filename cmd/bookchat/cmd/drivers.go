package cmd

// libsql registers the "libsql" database/sql driver used by storage.driver=libsql
import _ "github.com/tursodatabase/go-libsql"
