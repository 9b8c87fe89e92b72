package migrator

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faciam-dev/lbflow/pkg/backend"
)

// Migration is one versioned, reversible schema change. Up and Down receive
// the connection the runner holds, already inside a transaction.
type Migration interface {
	ID() string
	Name() string
	Up(ctx context.Context, ex backend.Executor) error
	Down(ctx context.Context, ex backend.Executor) error
	// Source is a stable textual form of Up and Down used for checksums.
	Source() string
}

// Record is a row of the migrations tracking table.
type Record struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ExecutedAt time.Time `json:"executedAt"`
	Checksum   string    `json:"checksum"`
}

// SQLMigration is a Migration backed by literal SQL scripts. Scripts may hold
// several statements separated by semicolons.
type SQLMigration struct {
	MigrationID   string
	MigrationName string
	UpSQL         string
	DownSQL       string
}

func (m SQLMigration) ID() string   { return m.MigrationID }
func (m SQLMigration) Name() string { return m.MigrationName }

func (m SQLMigration) Up(ctx context.Context, ex backend.Executor) error {
	return execAll(ctx, ex, m.UpSQL)
}

func (m SQLMigration) Down(ctx context.Context, ex backend.Executor) error {
	return execAll(ctx, ex, m.DownSQL)
}

func (m SQLMigration) Source() string {
	return "-- up\n" + strings.TrimSpace(m.UpSQL) + "\n-- down\n" + strings.TrimSpace(m.DownSQL) + "\n"
}

func execAll(ctx context.Context, ex backend.Executor, src string) error {
	for _, stmt := range SplitSQL(src) {
		if _, err := ex.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// Checksum returns the hex sha256 of m.Source().
func Checksum(m Migration) string {
	sum := sha256.Sum256([]byte(m.Source()))
	return hex.EncodeToString(sum[:])
}

// CompareIDs orders migration ids numerically when both are integers and
// lexically otherwise.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(a, b)
}

// SplitSQL splits a script into statements on semicolons outside quotes,
// dollar-quoted bodies and line comments.
func SplitSQL(src string) []string {
	var (
		res       []string
		buf       strings.Builder
		inSingle  bool
		inDouble  bool
		dollarTag string
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if dollarTag != "" {
			if strings.HasPrefix(src[i:], dollarTag) {
				buf.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
			buf.WriteByte(c)
			continue
		}
		switch c {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '-':
			if !inSingle && !inDouble && strings.HasPrefix(src[i:], "--") {
				end := strings.IndexByte(src[i:], '\n')
				if end < 0 {
					i = len(src)
				} else {
					i += end - 1
				}
				continue
			}
		case '$':
			if !inSingle && !inDouble {
				j := i + 1
				for j < len(src) && ((src[j] >= 'a' && src[j] <= 'z') || (src[j] >= 'A' && src[j] <= 'Z') || (src[j] >= '0' && src[j] <= '9') || src[j] == '_') {
					j++
				}
				if j < len(src) && src[j] == '$' {
					dollarTag = src[i : j+1]
					buf.WriteString(dollarTag)
					i = j
					continue
				}
			}
		case ';':
			if !inSingle && !inDouble {
				s := strings.TrimSpace(buf.String())
				if s != "" {
					res = append(res, s)
				}
				buf.Reset()
				continue
			}
		}
		buf.WriteByte(c)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		res = append(res, s)
	}
	return res
}
