package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/craftlab/cardsmith/internal/domain"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub implements pgx.Rows over a fixed set of pre-scanned rows.
type rowsStub struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Next() bool                                   { return r.idx < len(r.scans) }
func (r *rowsStub) Scan(dest ...any) error {
	s := r.scans[r.idx]
	r.idx++
	return s(dest...)
}
func (r *rowsStub) Values() ([]any, error) { return nil, nil }
func (r *rowsStub) RawValues() [][]byte    { return nil }
func (r *rowsStub) Conn() *pgx.Conn        { return nil }

// poolStub implements postgres.PgxPool for tests. QueryRow pops rows from a
// queue so multi-query code paths can be exercised.
type poolStub struct {
	execTag  pgconn.CommandTag
	execErr  error
	rowQueue []rowStub
	rows     pgx.Rows
	queryErr error

	execSQL  []string
	execArgs [][]any

	querySQL  []string
	queryArgs [][]any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.querySQL = append(p.querySQL, sql)
	p.queryArgs = append(p.queryArgs, args)
	if len(p.rowQueue) == 0 {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	row := p.rowQueue[0]
	p.rowQueue = p.rowQueue[1:]
	return row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return &rowsStub{}, nil
	}
	return p.rows, nil
}

// jobScanFunc produces a scan func matching the job column order.
func jobScanFunc(j domain.Job) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = j.ID
		*dest[1].(*string) = j.SessionID
		*dest[2].(*domain.Kind) = j.Kind
		*dest[3].(*domain.JobStatus) = j.Status
		*dest[4].(*string) = j.Prompt
		*dest[5].(*string) = j.ArtifactKey
		*dest[6].(*string) = j.ErrorKind
		*dest[7].(*string) = j.ErrorMsg
		*dest[8].(*time.Time) = j.CreatedAt
		*dest[9].(**time.Time) = j.StartedAt
		*dest[10].(**time.Time) = j.CompletedAt
		*dest[11].(*int) = j.Attempt
		*dest[12].(*int) = j.UserOrdinal
		*dest[13].(*int) = j.OverrideLevel
		return nil
	}
}
