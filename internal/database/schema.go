package database

var schemas = map[Dialect]string{
	DialectMySQL: `
CREATE TABLE IF NOT EXISTS kv_entries (
    entry_key VARCHAR(191) NOT NULL PRIMARY KEY,
    entry_value LONGTEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);`,
	DialectSQLite: `
CREATE TABLE IF NOT EXISTS kv_entries (
    entry_key TEXT NOT NULL PRIMARY KEY,
    entry_value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`,
}
