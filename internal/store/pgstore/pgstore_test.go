package pgstore

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSchemaDeclaresEveryTable(test *testing.T) {
	test.Parallel()
	for _, table := range []string{"accounts", "wallets", "wallet_transactions", "withdrawal_requests", "payment_records"} {
		if !strings.Contains(schemaSQL, "create table if not exists "+table+" (") {
			test.Fatalf("schema is missing table %s", table)
		}
	}
}

func TestIsUniqueViolation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), expected: true},
		{name: "check", err: &pgconn.PgError{Code: "23514"}, expected: false},
		{name: "plain", err: errors.New("boom"), expected: false},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if actual := isUniqueViolation(testCase.err); actual != testCase.expected {
				test.Fatalf("expected %v, got %v", testCase.expected, actual)
			}
		})
	}
}
