// Package all registers every storage backend with the storage factory.
//
// The binary imports it for side effects; configuration picks the kind.
package all

import (
	_ "rawload/internal/storage/mongodb"
	_ "rawload/internal/storage/mssql"
	_ "rawload/internal/storage/mysql"
	_ "rawload/internal/storage/postgres"
	_ "rawload/internal/storage/pq"
	_ "rawload/internal/storage/sqlite"
)
