package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionQuery_FirmwareOnly(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(TransactionQuery(ReportFilter{FirmwareID: 4}))
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM transactions WHERE firmware_id = ? ORDER BY service_name COLLATE BINARY ASC, code COLLATE BINARY ASC, id ASC")
	assert.Equal(t, []any{int64(4)}, params)
}

func TestTransactionQuery_AllFilters(t *testing.T) {
	code := int64(0x5f4e5446)
	f := ReportFilter{
		FirmwareID: 1,
		Service:    "activity",
		Kind:       "custom",
		Code:       &code,
		Status:     "slice_error",
		NewOnly:    true,
	}

	sql, params, err := NewSQLCompiler().Compile(TransactionQuery(f))
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE firmware_id = ? AND service_name = ? AND kind = ? AND code = ? AND status = ? AND in_baseline = ?")
	assert.Equal(t, []any{int64(1), "activity", "custom", code, "slice_error", false}, params)
}

func TestTransactionQuery_ZeroCodeFilters(t *testing.T) {
	zero := int64(0)
	_, params, err := NewSQLCompiler().Compile(TransactionQuery(ReportFilter{FirmwareID: 1, Code: &zero}))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(0)}, params)
}

func TestServiceQuery(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(ServiceQuery(ServiceFilter{FirmwareID: 2, Status: "no_binder"}))
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT id, firmware_id, run_id, name, class_name")
	assert.Contains(t, sql, "WHERE firmware_id = ? AND status = ? ORDER BY name COLLATE BINARY ASC, id ASC")
	assert.Equal(t, []any{int64(2), "no_binder"}, params)
}
