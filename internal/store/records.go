package store

// ServiceStatus is the outcome of analysing one registered service.
type ServiceStatus string

const (
	ServiceOK           ServiceStatus = "ok"
	ServiceInterface    ServiceStatus = "interface"
	ServiceNoBinder     ServiceStatus = "no_binder"
	ServiceResolveError ServiceStatus = "resolve_error"
	ServiceParseError   ServiceStatus = "parse_error"
	ServiceMissingClass ServiceStatus = "missing_class"
)

// TransactionStatus is the outcome of processing one request code.
type TransactionStatus string

const (
	TransactionOK         TransactionStatus = "ok"
	TransactionSliceError TransactionStatus = "slice_error"
)

// Firmware identifies one scanned image.
type Firmware struct {
	ID            int64
	Fingerprint   string
	Brand         string
	Product       string
	SecurityPatch string
	Release       int
	Path          string
	IsBaseline    bool
}

// Service is the per-service row of a scan.
type Service struct {
	ID            int64
	FirmwareID    int64
	RunID         string
	Name          string
	ClassName     string
	ConcreteClass string
	Status        ServiceStatus
	EntryPoint    string // dispatch method key, empty unless resolved
	InBaseline    *bool  // nil for baseline firmware
}

// Transaction is the per-code row of a scan.
type Transaction struct {
	ID            int64
	FirmwareID    int64
	RunID         string
	ServiceName   string
	Code          int64
	Kind          string // "standard" or "custom"
	Status        TransactionStatus
	ClassName     string
	ConcreteClass string
	Caller        string
	Callee        string
	CalleeName    string
	IsEmpty       bool
	Chain         []string
	IRText        string
	Fingerprint   string
	Error         string
	InBaseline    *bool
}

// IsCustom reports whether the handler was sliced out of inline code.
func (t Transaction) IsCustom() bool { return t.Kind == "custom" }

// Scan summarises one run over a firmware.
type Scan struct {
	ID           string
	FirmwareID   int64
	Services     int
	Transactions int
	Failures     int
}
