package scan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/binderscan/internal/config"
	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
	"github.com/roach88/binderscan/internal/querysql"
	"github.com/roach88/binderscan/internal/store"
)

// ============================================================================
// Service analysis
// ============================================================================

func TestAnalyze_ServiceStatuses(t *testing.T) {
	fx := newServiceFixture(t)

	results, err := newTestScanner(fx).Analyze(context.Background())
	require.NoError(t, err)

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Service.Name
	}
	assert.Equal(t, []string{"absfoo", "bar", "empty", "foo", "ghost", "iface", "plain"}, names)

	tests := []struct {
		service  string
		status   store.ServiceStatus
		concrete string
		entry    string
		codes    int
	}{
		{"foo", store.ServiceOK, "", fx.onTransact.Key(), 2},
		{"absfoo", store.ServiceOK, fooClass, fx.onTransact.Key(), 2},
		{"bar", store.ServiceNoBinder, "", "", 0},
		{"iface", store.ServiceInterface, "", "", 0},
		{"ghost", store.ServiceMissingClass, "", "", 0},
		{"plain", store.ServiceResolveError, "", "", 0},
		{"empty", store.ServiceParseError, "", emptyClass + "#" + fx.base.Signature(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			r := resultNamed(t, results, tt.service)
			assert.Equal(t, tt.status, r.Service.Status)
			assert.Equal(t, tt.concrete, r.Service.ConcreteClass)
			assert.Equal(t, tt.entry, r.Service.EntryPoint)
			assert.Len(t, r.Transactions, tt.codes)
			assert.Equal(t, tt.status != store.ServiceOK, r.Failed())
		})
	}
}

func TestAnalyze_StandardTransaction(t *testing.T) {
	fx := newServiceFixture(t)

	results, err := newTestScanner(fx).Analyze(context.Background())
	require.NoError(t, err)

	foo := resultNamed(t, results, "foo")
	require.Len(t, foo.Transactions, 2)
	txn := foo.Transactions[0]

	assert.Equal(t, int64(1), txn.Code)
	assert.Equal(t, string(engine.KindStandard), txn.Kind)
	assert.Equal(t, store.TransactionOK, txn.Status)
	assert.Equal(t, "foo", txn.ServiceName)
	assert.Equal(t, fooClass, txn.ClassName)
	assert.Equal(t, fx.onTransact.Key(), txn.Caller)
	// The interface target is narrowed to the service's own override.
	assert.Equal(t, fx.fooPing.Key(), txn.Callee)
	assert.Equal(t, "ping", txn.CalleeName)
	assert.Equal(t, []string{fx.helper.Key()}, txn.Chain)
	assert.False(t, txn.IsEmpty)
	assert.Contains(t, txn.IRText, "helper")
	assert.NotEmpty(t, txn.Fingerprint)
	assert.False(t, txn.IsCustom())
}

func TestAnalyze_CustomTransaction(t *testing.T) {
	fx := newServiceFixture(t)

	results, err := newTestScanner(fx).Analyze(context.Background())
	require.NoError(t, err)

	txn := resultNamed(t, results, "foo").Transactions[1]
	assert.Equal(t, int64(2), txn.Code)
	assert.True(t, txn.IsCustom())
	assert.Equal(t, store.TransactionOK, txn.Status)
	assert.Equal(t, "do_txn_code_2", txn.CalleeName)
	assert.Empty(t, txn.Chain, "parcel calls are not significant")
	assert.Contains(t, txn.IRText, "writeInt")
	assert.NotEmpty(t, txn.Fingerprint)
	assert.Empty(t, txn.Error)

	// The slice is not added to the declaring class.
	stub := fx.program.Class(stubClass)
	assert.Empty(t, stub.MethodsNamed("do_txn_code_2"))
}

func TestAnalyze_AbstractServiceUsesSubclass(t *testing.T) {
	fx := newServiceFixture(t)

	results, err := newTestScanner(fx).Analyze(context.Background())
	require.NoError(t, err)

	for _, txn := range resultNamed(t, results, "absfoo").Transactions {
		assert.Equal(t, stubClass, txn.ClassName)
		assert.Equal(t, fooClass, txn.ConcreteClass)
	}
}

func TestAnalyze_SyntheticPrefix(t *testing.T) {
	fx := newServiceFixture(t)
	cfg := DefaultConfig
	cfg.SyntheticPrefix = "handler_"

	s := newTestScanner(fx, WithConfig(cfg), WithServices(Service{Name: "foo", Class: fooClass}))
	results, err := s.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "handler_2", results[0].Transactions[1].CalleeName)
}

func TestAnalyze_ExplicitServices(t *testing.T) {
	fx := newServiceFixture(t)

	s := newTestScanner(fx, WithServices(
		Service{Name: "zeta", Class: fooClass},
		Service{Name: "alpha", Class: plainClass},
	))
	results, err := s.Analyze(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Service.Name)
	assert.Equal(t, store.ServiceResolveError, results[0].Service.Status)
	assert.Equal(t, "zeta", results[1].Service.Name)
	assert.Equal(t, store.ServiceOK, results[1].Service.Status)
}

func TestAnalyze_MissingDispatchClass(t *testing.T) {
	fx := newServiceFixture(t)
	cfg := DefaultConfig
	cfg.DispatchClass = "com.example.NoSuchBinder"

	_, err := newTestScanner(fx, WithConfig(cfg)).Analyze(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch class com.example.NoSuchBinder not found")
}

func TestAnalyze_Cancelled(t *testing.T) {
	fx := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(fx).Analyze(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessTransaction_SliceErrorIsIsolated(t *testing.T) {
	fx := newServiceFixture(t)
	s := newTestScanner(fx)
	body, err := fx.onTransact.Body()
	require.NoError(t, err)

	entry := engine.Entry{Code: 9, Transaction: engine.Custom{Caller: fx.onTransact, Body: body, Entry: ir.BlockID(99)}}
	txn := s.processTransaction(fx.program.Class(fooClass), entry)

	assert.Equal(t, store.TransactionSliceError, txn.Status)
	assert.NotEmpty(t, txn.Error)
	assert.Empty(t, txn.Callee)
	assert.Equal(t, fx.onTransact.Key(), txn.Caller)
}

func TestDispatchTarget_UnrelatedTargetUnchanged(t *testing.T) {
	fx := newServiceFixture(t)
	s := newTestScanner(fx)

	// helper is declared on FooService, which Plain does not extend.
	got := s.dispatchTarget(fx.program.Class(plainClass), fx.helper)
	assert.Same(t, fx.helper, got)
}

// ============================================================================
// Runs
// ============================================================================

func TestRun_BaselineFirmware(t *testing.T) {
	fx := newServiceFixture(t)
	st := createTestStore(t)
	ctx := context.Background()

	report, err := newTestScanner(fx).Run(ctx, st, firmware("fp-base", 14, true))
	require.NoError(t, err)

	assert.Equal(t, "run-0001", report.RunID)
	assert.Equal(t, 7, report.Services)
	assert.Equal(t, 4, report.Transactions)
	assert.Equal(t, 5, report.Failures)
	assert.Equal(t, time.Second, report.Elapsed)
	assert.Equal(t, 2, report.ByStatus()[store.ServiceOK])
	assert.NotZero(t, report.Firmware.ID)

	services, err := st.Services(ctx, querysql.ServiceFilter{FirmwareID: report.Firmware.ID})
	require.NoError(t, err)
	require.Len(t, services, 7)
	for _, svc := range services {
		assert.Nil(t, svc.InBaseline, "baseline rows carry no baseline flag")
		assert.Equal(t, "run-0001", svc.RunID)
	}

	txns, err := st.Transactions(ctx, querysql.ReportFilter{FirmwareID: report.Firmware.ID, Service: "foo"})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, []string{fx.helper.Key()}, txns[0].Chain)
	assert.Equal(t, "custom", txns[1].Kind)

	scans, err := st.Scans(ctx, report.Firmware.ID)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, store.Scan{ID: "run-0001", FirmwareID: report.Firmware.ID, Services: 7, Transactions: 4, Failures: 5}, scans[0])
}

func TestRun_RequiresBaseline(t *testing.T) {
	fx := newServiceFixture(t)
	st := createTestStore(t)

	_, err := newTestScanner(fx).Run(context.Background(), st, firmware("fp-new", 14, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no baseline firmware for release 14")
}

func TestRun_FlagsAgainstBaseline(t *testing.T) {
	fx := newServiceFixture(t)
	st := createTestStore(t)
	ctx := context.Background()

	base := newTestScanner(fx, WithServices(Service{Name: "foo", Class: fooClass}))
	_, err := base.Run(ctx, st, firmware("fp-base", 14, true))
	require.NoError(t, err)

	report, err := newTestScanner(fx).Run(ctx, st, firmware("fp-new", 14, false))
	require.NoError(t, err)

	for _, res := range report.Results {
		require.NotNil(t, res.Service.InBaseline, res.Service.Name)
		assert.Equal(t, res.Service.Name == "foo", *res.Service.InBaseline, res.Service.Name)
	}

	fresh, err := st.Services(ctx, querysql.ServiceFilter{FirmwareID: report.Firmware.ID, NewOnly: true})
	require.NoError(t, err)
	assert.Len(t, fresh, 6)

	txns, err := st.Transactions(ctx, querysql.ReportFilter{FirmwareID: report.Firmware.ID})
	require.NoError(t, err)
	require.Len(t, txns, 4)
	for _, txn := range txns {
		require.NotNil(t, txn.InBaseline)
		// Transactions match by service and callee name.
		assert.Equal(t, txn.ServiceName == "foo", *txn.InBaseline, "%s/%d", txn.ServiceName, txn.Code)
	}
}

func TestRun_OtherReleaseHasNoBaseline(t *testing.T) {
	fx := newServiceFixture(t)
	st := createTestStore(t)
	ctx := context.Background()

	_, err := newTestScanner(fx).Run(ctx, st, firmware("fp-base", 14, true))
	require.NoError(t, err)

	_, err = newTestScanner(fx).Run(ctx, st, firmware("fp-new", 15, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release 15")
}

func TestRun_RescanReplacesRows(t *testing.T) {
	fx := newServiceFixture(t)
	st := createTestStore(t)
	ctx := context.Background()
	s := newTestScanner(fx)

	first, err := s.Run(ctx, st, firmware("fp-base", 14, true))
	require.NoError(t, err)
	second, err := s.Run(ctx, st, firmware("fp-base", 14, true))
	require.NoError(t, err)

	assert.Equal(t, first.Firmware.ID, second.Firmware.ID)
	assert.NotEqual(t, first.RunID, second.RunID)

	services, err := st.Services(ctx, querysql.ServiceFilter{FirmwareID: second.Firmware.ID})
	require.NoError(t, err)
	require.Len(t, services, 7)
	for _, svc := range services {
		assert.Equal(t, second.RunID, svc.RunID)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	fx := newServiceFixture(t)
	st := createTestStore(t, store.WithDryRun(true))
	ctx := context.Background()

	report, err := newTestScanner(fx).Run(ctx, st, firmware("fp-base", 14, true))
	require.NoError(t, err)
	assert.Equal(t, 7, report.Services)

	services, err := st.Services(ctx, querysql.ServiceFilter{FirmwareID: report.Firmware.ID})
	require.NoError(t, err)
	assert.Empty(t, services)
}

// ============================================================================
// Defaults
// ============================================================================

func TestDefaultConfig_MatchesSchema(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	assert.Equal(t, cfg.Scan, DefaultConfig)
}

func TestUUIDv7Generator(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.NewID(), g.NewID()

	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, strings.Compare(a, b), 0, "v7 ids sort by creation time")
}

func TestNew_Defaults(t *testing.T) {
	fx := newServiceFixture(t)
	s := New(fx.program)

	assert.NotNil(t, s.resolver)
	assert.NotNil(t, s.summarizer)
	assert.Equal(t, DefaultConfig, s.cfg)
	assert.IsType(t, UUIDv7Generator{}, s.ids)
}
