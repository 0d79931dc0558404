// Package scan turns a photographed production sheet ("scheda") into
// validated order fields and stages them for operator review.
package scan

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/parse"
)

// ErrUnreadableSheet is returned when the extraction model gives back nothing
// usable. Nothing is staged in that case.
var ErrUnreadableSheet = errors.New("impossibile leggere i dati della scheda, assicurati che la foto sia nitida")

const (
	NotAvailable        = "N/D"
	DefaultConfirmation = "SI"
	GenericClientID     = "GENERICO"
	GenericClientName   = "Cliente Generico"
)

// Sheet holds the fields read off a production sheet, already coerced to the
// column types of a work order.
type Sheet struct {
	Sheet         int     `json:"sheet"`
	CoilCode      string  `json:"coil_code"`
	CoilKg        int     `json:"coil_kg"`
	Thickness     float64 `json:"thickness"`
	Width         float64 `json:"width"`
	Alloy         string  `json:"alloy"`
	PhysicalState string  `json:"physical_state"`
	Confirmation  string  `json:"confirmation"`
	ClientID      string  `json:"client_id"`
	ClientName    string  `json:"client_name"`
	RequestedKg   int     `json:"requested_kg"`
	WorkedKg      int     `json:"worked_kg"`
	Measure       float64 `json:"measure"`
}

// Widths of the text columns a sheet fills.
const (
	maxCodeLen = 32
	maxTextLen = 64
	maxNameLen = 256
)

// Field names of the extraction schema.
const (
	keySheet         = "scheda"
	keyCoilCode      = "mcoil"
	keyCoilKg        = "mcoil_kg"
	keyThickness     = "spessore"
	keyWidth         = "mcoil_larghezza"
	keyAlloy         = "mcoil_lega"
	keyPhysicalState = "mcoil_stato_fisico"
	keyConfirmation  = "conferma_voce"
	keyClientID      = "id_cliente"
	keyClientName    = "cliente_nome"
	keyRequestedKg   = "ordine_kg_richiesto"
	keyWorkedKg      = "ordine_kg_lavorato"
	keyMeasure       = "misura"
)

// Decode parses the model's JSON answer. Values are coerced leniently:
// integers keep their leading digits and are clamped to a smallint, anything
// non-numeric becomes 0, and missing text gets its default.
func Decode(text string) (Sheet, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Sheet{}, ErrUnreadableSheet
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil || len(raw) == 0 {
		return Sheet{}, ErrUnreadableSheet
	}

	s := Sheet{
		Sheet:         parse.SmallInt(raw[keySheet]),
		CoilCode:      parse.Text(raw[keyCoilCode], ""),
		CoilKg:        parse.SmallInt(raw[keyCoilKg]),
		Thickness:     parse.Float(raw[keyThickness]),
		Width:         parse.Float(raw[keyWidth]),
		Alloy:         parse.Text(raw[keyAlloy], ""),
		PhysicalState: parse.Text(raw[keyPhysicalState], ""),
		Confirmation:  parse.Text(raw[keyConfirmation], ""),
		ClientID:      parse.Text(raw[keyClientID], ""),
		ClientName:    parse.Text(raw[keyClientName], ""),
		RequestedKg:   parse.SmallInt(raw[keyRequestedKg]),
		WorkedKg:      parse.SmallInt(raw[keyWorkedKg]),
		Measure:       parse.Float(raw[keyMeasure]),
	}
	return s.Normalize(), nil
}

// Normalize clamps the integer fields and fills empty text with defaults.
// Operator edits go through it before they replace a staged sheet.
func (s Sheet) Normalize() Sheet {
	s.Sheet = parse.ClampSmallInt(s.Sheet)
	s.CoilKg = parse.ClampSmallInt(s.CoilKg)
	s.RequestedKg = parse.ClampSmallInt(s.RequestedKg)
	s.WorkedKg = parse.ClampSmallInt(s.WorkedKg)
	if s.Thickness < 0 {
		s.Thickness = 0
	}
	if s.Width < 0 {
		s.Width = 0
	}
	if s.Measure < 0 {
		s.Measure = 0
	}

	s.CoilCode = parse.Clip(parse.Text(s.CoilCode, NotAvailable), maxTextLen)
	s.Alloy = parse.Clip(parse.Text(s.Alloy, NotAvailable), maxTextLen)
	s.PhysicalState = parse.Clip(parse.Text(s.PhysicalState, NotAvailable), maxTextLen)
	s.Confirmation = parse.Clip(parse.Text(s.Confirmation, DefaultConfirmation), maxCodeLen)

	// Client ids are matched exactly; only the generic one is canonical.
	s.ClientID = parse.Clip(parse.Text(s.ClientID, GenericClientID), maxCodeLen)
	if parse.Code(s.ClientID, "") == GenericClientID {
		s.ClientID = GenericClientID
	}

	fallback := s.ClientID
	if s.ClientID == GenericClientID {
		fallback = GenericClientName
	}
	s.ClientName = parse.Clip(parse.Text(s.ClientName, fallback), maxNameLen)
	return s
}

// Client is the client row the sheet refers to.
func (s Sheet) Client() model.Client {
	return model.Client{ID: s.ClientID, Name: s.ClientName}
}

// Order builds a work order entering production on machineID in phase at now.
func (s Sheet) Order(machineID string, phase model.PhaseID, now time.Time) model.WorkOrder {
	requested, worked := s.RequestedKg, s.WorkedKg
	return model.WorkOrder{
		ID:            now,
		MachineID:     machineID,
		PhaseID:       phase,
		StatusID:      model.StatusInProduction,
		Sheet:         s.Sheet,
		CoilCode:      s.CoilCode,
		CoilKg:        s.CoilKg,
		Thickness:     s.Thickness,
		Width:         s.Width,
		Alloy:         s.Alloy,
		PhysicalState: s.PhysicalState,
		Confirmation:  s.Confirmation,
		ClientID:      s.ClientID,
		RequestedKg:   &requested,
		WorkedKg:      &worked,
		Measure:       s.Measure,
		StartedAt:     &now,
	}
}
