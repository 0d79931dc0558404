package model

// StatusID identifies the lifecycle state of a work order.
type StatusID string

const (
	StatusWaiting      StatusID = "ATT" // in attesa
	StatusInProduction StatusID = "PRO" // in produzione
	StatusOutbound     StatusID = "EXT" // in uscita
	StatusTerminated   StatusID = "TER" // terminata
)

// Statuses are the seeded rows of the statuses table.
var Statuses = []Status{
	{ID: StatusWaiting, Name: "IN ATTESA"},
	{ID: StatusInProduction, Name: "IN PRODUZIONE"},
	{ID: StatusOutbound, Name: "IN USCITA"},
	{ID: StatusTerminated, Name: "TERMINATA"},
}

// PhaseID identifies a production phase.
type PhaseID string

const (
	PhaseMLT PhaseID = "MLT"
	PhaseMAM PhaseID = "MAM"
	PhaseMST PhaseID = "MST"
	PhaseAVV PhaseID = "AVV"
	PhaseROT PhaseID = "ROT"
	PhaseTDI PhaseID = "TDI"
	PhaseTSB PhaseID = "TSB"
	PhaseTST PhaseID = "TST"
)
