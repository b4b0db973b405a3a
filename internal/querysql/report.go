package querysql

import "github.com/roach88/binderscan/internal/queryir"

// ServiceColumns is the projection of every service read, in scan order.
var ServiceColumns = []string{
	"id", "firmware_id", "run_id", "name", "class_name", "concrete_class",
	"status", "entry_point", "in_baseline",
}

// TransactionColumns is the projection of every transaction read, in
// scan order.
var TransactionColumns = []string{
	"id", "firmware_id", "run_id", "service_name", "code", "kind", "status",
	"class_name", "concrete_class", "caller", "callee", "callee_name",
	"is_empty", "chain", "ir_text", "fingerprint", "error", "in_baseline",
}

// Tables is the queryable result schema.
var Tables = queryir.Schema{
	"services":     ServiceColumns,
	"transactions": append(append([]string{}, TransactionColumns...), "is_custom"),
}

// ReportFilter selects transactions of one firmware. Zero fields do not
// filter.
type ReportFilter struct {
	FirmwareID int64
	Service    string
	Kind       string
	Code       *int64
	Status     string
	// NewOnly keeps rows absent from the baseline firmware.
	NewOnly bool
}

// TransactionQuery builds the transaction report query, ordered by
// service and code.
func TransactionQuery(f ReportFilter) queryir.Select {
	var code queryir.Predicate
	if f.Code != nil {
		code = queryir.Equals{Field: "code", Value: queryir.Int(*f.Code)}
	}
	return queryir.Select{
		From:    "transactions",
		Columns: TransactionColumns,
		Filter: queryir.All(
			queryir.Equals{Field: "firmware_id", Value: queryir.Int(f.FirmwareID)},
			eqString("service_name", f.Service),
			eqString("kind", f.Kind),
			code,
			eqString("status", f.Status),
			newOnly(f.NewOnly),
		),
		OrderBy: []string{"service_name", "code"},
	}
}

// ServiceFilter selects services of one firmware.
type ServiceFilter struct {
	FirmwareID int64
	Name       string
	Status     string
	NewOnly    bool
}

// ServiceQuery builds the service report query, ordered by name.
func ServiceQuery(f ServiceFilter) queryir.Select {
	return queryir.Select{
		From:    "services",
		Columns: ServiceColumns,
		Filter: queryir.All(
			queryir.Equals{Field: "firmware_id", Value: queryir.Int(f.FirmwareID)},
			eqString("name", f.Name),
			eqString("status", f.Status),
			newOnly(f.NewOnly),
		),
		OrderBy: []string{"name"},
	}
}

func eqString(field, v string) queryir.Predicate {
	if v == "" {
		return nil
	}
	return queryir.Equals{Field: field, Value: queryir.String(v)}
}

func newOnly(on bool) queryir.Predicate {
	if !on {
		return nil
	}
	return queryir.Equals{Field: "in_baseline", Value: queryir.Bool(false)}
}
