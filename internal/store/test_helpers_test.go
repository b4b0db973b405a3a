package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFirmware inserts a firmware row and returns it.
func createTestFirmware(t *testing.T, s *Store, fingerprint string, release int, baseline bool) Firmware {
	t.Helper()
	fw, err := s.FindOrInsertFirmware(context.Background(), Firmware{
		Fingerprint: fingerprint,
		Brand:       "generic",
		Product:     "test",
		Release:     release,
		IsBaseline:  baseline,
	})
	if err != nil {
		t.Fatalf("FindOrInsertFirmware() failed: %v", err)
	}
	return fw
}

// createTestService builds a service row with minimal required fields.
func createTestService(firmwareID int64, name string, status ServiceStatus) Service {
	return Service{
		FirmwareID: firmwareID,
		RunID:      "run-1",
		Name:       name,
		ClassName:  "com.example." + name,
		Status:     status,
	}
}

// createTestTransaction builds a transaction row with minimal required fields.
func createTestTransaction(firmwareID int64, service string, code int64, kind string) Transaction {
	return Transaction{
		FirmwareID:  firmwareID,
		RunID:       "run-1",
		ServiceName: service,
		Code:        code,
		Kind:        kind,
		Status:      TransactionOK,
		ClassName:   "com.example." + service,
		Caller:      "com.example." + service + "#onTransact(int,android.os.Parcel,android.os.Parcel,int)boolean",
		Chain:       []string{},
	}
}

func boolRef(b bool) *bool { return &b }
