package util

import (
	"regexp"
	"strings"
)

// disallowedSQLTokens is the DDL/DML/CTE keyword blocklist §7 requires a SQL
// lexer pass to catch: statement-introducing keywords that have no
// legitimate place inside a formula or ds_formula expression fragment,
// mirroring original_source/zillion's sqlparse-based DML/DDL/CTE token
// check but expressed as a plain keyword set since no SQL tokenizer library
// is available here.
var disallowedSQLTokens = map[string]bool{
	"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true,
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "REPLACE": true,
	"WITH": true, // CTE
	"GRANT": true, "REVOKE": true, "EXEC": true, "EXECUTE": true, "CALL": true,
}

// sqlWordRE splits an expression into identifier-like words plus the
// statement-separator and comment-opener punctuation worth flagging on
// their own.
var sqlWordRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|;|--|/\*`)

// CheckDisallowedSQL lexes expr into tokens and rejects it with a
// DisallowedSQL error the moment one matches a forbidden DDL/DML/CTE
// keyword, a statement separator, or a comment opener -- the "rejected
// before planning completes" requirement of §7, applied to every
// user-supplied formula and ds_formula before it is ever substituted into
// generated SQL.
func CheckDisallowedSQL(expr string) error {
	for _, tok := range sqlWordRE.FindAllString(expr, -1) {
		switch tok {
		case ";", "--", "/*":
			return DisallowedSQL(tok, expr)
		}
		if disallowedSQLTokens[strings.ToUpper(tok)] {
			return DisallowedSQL(tok, expr)
		}
	}
	return nil
}
