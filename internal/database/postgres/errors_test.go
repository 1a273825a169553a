package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/kozaktomas/visualmatch/internal/database"
	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"bad connection", driver.ErrBadConn, true},
		{"connection done", fmt.Errorf("query: %w", sql.ErrConnDone), true},
		{"connection failure class", &pq.Error{Code: "08006"}, true},
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"network error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"no rows", sql.ErrNoRows, false},
		{"cancelled", context.Canceled, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := errors.Is(classify(tc.err), database.ErrIndexUnavailable)
			if got != tc.unavailable {
				t.Errorf("classify(%v) unavailable = %v, want %v", tc.err, got, tc.unavailable)
			}
			if !errors.Is(classify(tc.err), tc.err) {
				t.Error("classified error lost its cause")
			}
		})
	}
}
