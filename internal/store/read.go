package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/binderscan/internal/querysql"
)

// FirmwareByFingerprint retrieves a firmware row.
// Returns sql.ErrNoRows if not found.
func (s *Store) FirmwareByFingerprint(ctx context.Context, fingerprint string) (Firmware, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, brand, product, security_patch, os_release, path, is_baseline
		FROM firmware
		WHERE fingerprint = ?
	`, fingerprint)
	return scanFirmware(row)
}

// BaselineByRelease returns the baseline firmware of a release. The bool
// is false when no baseline has been scanned. When several exist the
// first inserted wins.
func (s *Store) BaselineByRelease(ctx context.Context, release int) (Firmware, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, brand, product, security_patch, os_release, path, is_baseline
		FROM firmware
		WHERE os_release = ? AND is_baseline = 1
		ORDER BY id ASC
		LIMIT 1
	`, release)
	fw, err := scanFirmware(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Firmware{}, false, nil
	}
	if err != nil {
		return Firmware{}, false, fmt.Errorf("baseline for release %d: %w", release, err)
	}
	return fw, true, nil
}

// ServiceExists reports whether a firmware has a service row with name.
func (s *Store) ServiceExists(ctx context.Context, firmwareID int64, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM services
		WHERE firmware_id = ? AND name = ?
	`, firmwareID, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check service: %w", err)
	}
	return count > 0, nil
}

// TransactionExists reports whether a firmware has a transaction of
// service whose callee has the given method name.
func (s *Store) TransactionExists(ctx context.Context, firmwareID int64, service, calleeName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE firmware_id = ? AND service_name = ? AND callee_name = ?
	`, firmwareID, service, calleeName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check transaction: %w", err)
	}
	return count > 0, nil
}

// Services returns the services matching f ordered by name.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Services(ctx context.Context, f querysql.ServiceFilter) ([]Service, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(querysql.ServiceQuery(f))
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	services := []Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// Transactions returns the transactions matching f ordered by service
// and code. Returns an empty slice (not nil) when nothing matches.
func (s *Store) Transactions(ctx context.Context, f querysql.ReportFilter) ([]Transaction, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(querysql.TransactionQuery(f))
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// Scans returns the recorded runs of a firmware in id order.
func (s *Store) Scans(ctx context.Context, firmwareID int64) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, firmware_id, services, transactions, failures
		FROM scans
		WHERE firmware_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, firmwareID)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	scans := []Scan{}
	for rows.Next() {
		var sc Scan
		if err := rows.Scan(&sc.ID, &sc.FirmwareID, &sc.Services, &sc.Transactions, &sc.Failures); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return scans, nil
}

// scanner is the subset shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanFirmware(row scanner) (Firmware, error) {
	var fw Firmware
	err := row.Scan(&fw.ID, &fw.Fingerprint, &fw.Brand, &fw.Product, &fw.SecurityPatch, &fw.Release, &fw.Path, &fw.IsBaseline)
	if err != nil {
		return Firmware{}, err
	}
	return fw, nil
}

// scanService reads a row projected with querysql.ServiceColumns.
func scanService(row scanner) (Service, error) {
	var (
		svc        Service
		status     string
		inBaseline sql.NullBool
	)
	err := row.Scan(
		&svc.ID,
		&svc.FirmwareID,
		&svc.RunID,
		&svc.Name,
		&svc.ClassName,
		&svc.ConcreteClass,
		&status,
		&svc.EntryPoint,
		&inBaseline,
	)
	if err != nil {
		return Service{}, fmt.Errorf("scan service: %w", err)
	}
	svc.Status = ServiceStatus(status)
	svc.InBaseline = nullableBool(inBaseline)
	return svc, nil
}

// scanTransaction reads a row projected with querysql.TransactionColumns.
func scanTransaction(row scanner) (Transaction, error) {
	var (
		t          Transaction
		status     string
		chainJSON  string
		inBaseline sql.NullBool
	)
	err := row.Scan(
		&t.ID,
		&t.FirmwareID,
		&t.RunID,
		&t.ServiceName,
		&t.Code,
		&t.Kind,
		&status,
		&t.ClassName,
		&t.ConcreteClass,
		&t.Caller,
		&t.Callee,
		&t.CalleeName,
		&t.IsEmpty,
		&chainJSON,
		&t.IRText,
		&t.Fingerprint,
		&t.Error,
		&inBaseline,
	)
	if err != nil {
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Status = TransactionStatus(status)
	t.InBaseline = nullableBool(inBaseline)
	t.Chain, err = unmarshalChain(chainJSON)
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}
