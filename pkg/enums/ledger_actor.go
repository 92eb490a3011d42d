package enums

// LedgerActor records who created a ledger entry.
type LedgerActor string

const (
	LedgerActorSystem LedgerActor = "system"
	LedgerActorAdmin  LedgerActor = "admin"
)

// IsValid reports whether the value is a known LedgerActor.
func (a LedgerActor) IsValid() bool {
	return a == LedgerActorSystem || a == LedgerActorAdmin
}
