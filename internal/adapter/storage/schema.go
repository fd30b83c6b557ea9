package storage

import _ "embed"

var (
	//go:embed migrations/mysql.sql
	mysqlSchema string

	//go:embed migrations/postgres.sql
	postgresSchema string
)
