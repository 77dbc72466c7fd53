package database

import _ "embed"

// Schema 建表脚本（scripts/setup_db.go 使用）
//
//go:embed schema.sql
var Schema string
