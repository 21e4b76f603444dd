package validation

// Dialect-specific patterns. They run against the original query text and
// only ever add rejections on top of the common rules.

// selectInto creates a table from a query on PostgreSQL and SQL Server and
// writes files or variables on MySQL.
var selectInto = NewPattern(`(?i)\bINTO\b`, "SELECT ... INTO")

var PostgresPatterns = []Pattern{
	selectInto,
	NewPattern(`(?i)\bCOPY\b`, "COPY"),
	NewPattern(`(?i)\bpg_read_file\s*\(`, "pg_read_file()"),
	NewPattern(`(?i)\bpg_read_binary_file\s*\(`, "pg_read_binary_file()"),
	NewPattern(`(?i)\bpg_ls_dir\s*\(`, "pg_ls_dir()"),
	NewPattern(`(?i)\blo_import\s*\(`, "lo_import()"),
	NewPattern(`(?i)\blo_export\s*\(`, "lo_export()"),
	NewPattern(`(?i)\bpg_sleep(_for|_until)?\s*\(`, "pg_sleep()"),
	NewPattern(`(?i)\bpg_(try_)?advisory(_xact)?_lock\s*\(`, "pg_advisory_lock()"),
	NewPattern(`(?i)\b(CALL|LISTEN|NOTIFY|PREPARE|DEALLOCATE|VACUUM|REINDEX|CLUSTER)\b`, "session or maintenance command"),
}

var MySQLPatterns = []Pattern{
	selectInto,
	NewPattern(`(?i)\bLOAD_FILE\s*\(`, "LOAD_FILE()"),
	NewPattern(`(?i)\bSLEEP\s*\(`, "SLEEP()"),
	NewPattern(`(?i)\bBENCHMARK\s*\(`, "BENCHMARK()"),
	NewPattern(`(?i)\b(GET_LOCK|RELEASE_LOCK|IS_FREE_LOCK|IS_USED_LOCK)\s*\(`, "named lock function"),
	NewPattern(`(?i)\b(MASTER_POS_WAIT|SOURCE_POS_WAIT|WAIT_FOR_EXECUTED_GTID_SET|WAIT_UNTIL_SQL_THREAD_AFTER_GTIDS)\s*\(`, "replication wait function"),
	NewPattern(`(?i)\b(CALL|LOAD|HANDLER|RENAME)\b`, "procedure or load command"),
}

var MSSQLPatterns = []Pattern{
	selectInto,
	NewPattern(`(?i)\bWAITFOR\b`, "WAITFOR"),
	NewPattern(`(?i)\bxp_\w+`, "extended stored procedure"),
	NewPattern(`(?i)\bsp_\w+`, "system stored procedure"),
	NewPattern(`(?i)\b(OPENROWSET|OPENDATASOURCE|OPENQUERY|OPENXML)\b`, "external data source"),
	NewPattern(`(?i)\bBULK\b`, "BULK"),
}

var SQLitePatterns = []Pattern{
	NewPattern(`(?i)\bload_extension\s*\(`, "load_extension()"),
	NewPattern(`(?i)\bwritefile\s*\(`, "writefile()"),
	NewPattern(`(?i)\bedit\s*\(`, "edit()"),
	NewPattern(`(?i)\bfts3_tokenizer\s*\(`, "fts3_tokenizer()"),
	NewPattern(`(?i)\b(ATTACH|DETACH|VACUUM|REINDEX)\b`, "database file command"),
	NewPattern(`(?i)\bPRAGMA\s+\w+\s*=`, "PRAGMA write"),
}
