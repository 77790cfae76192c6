package config

type PostgresConfig struct {
	// libpq-style key/value connection parameters, e.g.
	// host, port, user, password, dbname, sslmode.
	Connection map[string]string

	// Name of the table assignments are stored in.
	TableName string
}
