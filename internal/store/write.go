package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// execer is the subset shared by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// FindOrInsertFirmware returns the firmware row with fw's fingerprint,
// inserting fw when none exists. An existing row is returned unchanged.
// Firmware rows are written even in dry-run mode.
func (s *Store) FindOrInsertFirmware(ctx context.Context, fw Firmware) (Firmware, error) {
	existing, err := s.FirmwareByFingerprint(ctx, fw.Fingerprint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Firmware{}, fmt.Errorf("find firmware: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO firmware
		(fingerprint, brand, product, security_patch, os_release, path, is_baseline)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		fw.Fingerprint,
		fw.Brand,
		fw.Product,
		fw.SecurityPatch,
		fw.Release,
		fw.Path,
		fw.IsBaseline,
	)
	if err != nil {
		return Firmware{}, fmt.Errorf("insert firmware: %w", err)
	}
	fw.ID, err = result.LastInsertId()
	if err != nil {
		return Firmware{}, fmt.Errorf("insert firmware: last insert id: %w", err)
	}
	return fw, nil
}

// ClearFirmware deletes every service, transaction and scan row of a
// firmware so that a rescan replaces them.
func (s *Store) ClearFirmware(ctx context.Context, firmwareID int64) error {
	if s.dryRun {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear firmware: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "services", "scans"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE firmware_id = ?", firmwareID); err != nil {
			return fmt.Errorf("clear firmware: %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear firmware: commit: %w", err)
	}
	return nil
}

// InsertService writes one service row and returns its id, or 0 in
// dry-run mode.
func (s *Store) InsertService(ctx context.Context, svc Service) (int64, error) {
	if s.dryRun {
		return 0, nil
	}
	return insertService(ctx, s.db, svc)
}

// InsertTransaction writes one transaction row and returns its id, or 0
// in dry-run mode.
func (s *Store) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	if s.dryRun {
		return 0, nil
	}
	return insertTransaction(ctx, s.db, t)
}

// WriteService atomically writes a service together with its
// transactions. Either every row lands or none does.
func (s *Store) WriteService(ctx context.Context, svc Service, txns []Transaction) error {
	if s.dryRun {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write service %s: begin tx: %w", svc.Name, err)
	}
	defer tx.Rollback()

	if _, err := insertService(ctx, tx, svc); err != nil {
		return err
	}
	for _, t := range txns {
		if _, err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write service %s: commit: %w", svc.Name, err)
	}
	return nil
}

// WriteScan records the summary of a finished run.
func (s *Store) WriteScan(ctx context.Context, scan Scan) error {
	if s.dryRun {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans
		(id, firmware_id, services, transactions, failures)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		scan.ID,
		scan.FirmwareID,
		scan.Services,
		scan.Transactions,
		scan.Failures,
	)
	if err != nil {
		return fmt.Errorf("write scan: %w", err)
	}
	return nil
}

func insertService(ctx context.Context, db execer, svc Service) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO services
		(firmware_id, run_id, name, class_name, concrete_class, status, entry_point, in_baseline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		svc.FirmwareID,
		svc.RunID,
		svc.Name,
		svc.ClassName,
		svc.ConcreteClass,
		string(svc.Status),
		svc.EntryPoint,
		boolParam(svc.InBaseline),
	)
	if err != nil {
		return 0, fmt.Errorf("insert service %s: %w", svc.Name, err)
	}
	return result.LastInsertId()
}

func insertTransaction(ctx context.Context, db execer, t Transaction) (int64, error) {
	chainJSON, err := marshalChain(t.Chain)
	if err != nil {
		return 0, fmt.Errorf("insert transaction %s/%d: %w", t.ServiceName, t.Code, err)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(firmware_id, run_id, service_name, code, kind, status, class_name, concrete_class,
		 caller, callee, callee_name, is_custom, is_empty, chain, ir_text, fingerprint, error, in_baseline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.FirmwareID,
		t.RunID,
		t.ServiceName,
		t.Code,
		t.Kind,
		string(t.Status),
		t.ClassName,
		t.ConcreteClass,
		t.Caller,
		t.Callee,
		t.CalleeName,
		t.IsCustom(),
		t.IsEmpty,
		chainJSON,
		t.IRText,
		t.Fingerprint,
		t.Error,
		boolParam(t.InBaseline),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction %s/%d: %w", t.ServiceName, t.Code, err)
	}
	return result.LastInsertId()
}
