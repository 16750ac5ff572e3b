package iec62056_serial

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrMissingIdentification = errors.New("no meter identification confirmed for this cycle")

type obisField int

const (
	obisFieldTime obisField = iota
	obisFieldDate
	obisFieldConsumptionTotal
	obisFieldConsumptionTariff1
	obisFieldConsumptionTariff2
	obisFieldProductionTotal
	obisFieldProductionTariff1
	obisFieldProductionTariff2
	obisFieldPhase1Voltage
	obisFieldPhase2Voltage
	obisFieldPhase3Voltage
	obisFieldPhase1Current
	obisFieldPhase2Current
	obisFieldPhase3Current
	obisFieldPhase1PowerFactor
	obisFieldPhase2PowerFactor
	obisFieldPhase3PowerFactor
	obisFieldPhase1Power
	obisFieldPhase2Power
	obisFieldPhase3Power
	obisFieldFrequency
)

type obisEntry struct {
	field obisField
	apply func(reading *MeterReading, rawValue string) bool
}

// unit suffixes stripped before numeric parsing; kWh must come before kW
var obisUnitSuffixes = []string{"*kWh", "*kW", "*V", "*A", "*Hz"}

// obisRegistry routes telegram codes into reading fields. It carries both
// dialects seen in the field: meters that report voltage/current/power
// factor (power gets derived on assembly) and meters that report phase
// power directly under its own codes.
var obisRegistry = map[string]obisEntry{
	"0.8.1": {obisFieldTime, applyMeterTime},
	"0.8.2": {obisFieldDate, applyMeterDate},

	"1-0:1.8.0": numericEntry(obisFieldConsumptionTotal, func(r *MeterReading, v float64) { r.ConsumptionTotalKWh = v }),
	"1-0:1.8.1": numericEntry(obisFieldConsumptionTariff1, func(r *MeterReading, v float64) { r.ConsumptionTariff1KWh = v }),
	"1-0:1.8.2": numericEntry(obisFieldConsumptionTariff2, func(r *MeterReading, v float64) { r.ConsumptionTariff2KWh = v }),
	"1-0:2.8.0": numericEntry(obisFieldProductionTotal, func(r *MeterReading, v float64) { r.ProductionTotalKWh = v }),
	"1-0:2.8.1": numericEntry(obisFieldProductionTariff1, func(r *MeterReading, v float64) { r.ProductionTariff1KWh = v }),
	"1-0:2.8.2": numericEntry(obisFieldProductionTariff2, func(r *MeterReading, v float64) { r.ProductionTariff2KWh = v }),

	"1-0:32.7.0": numericEntry(obisFieldPhase1Voltage, func(r *MeterReading, v float64) { r.Phase1Voltage = v }),
	"1-0:52.7.0": numericEntry(obisFieldPhase2Voltage, func(r *MeterReading, v float64) { r.Phase2Voltage = v }),
	"1-0:72.7.0": numericEntry(obisFieldPhase3Voltage, func(r *MeterReading, v float64) { r.Phase3Voltage = v }),

	"1-0:31.7.0": numericEntry(obisFieldPhase1Current, func(r *MeterReading, v float64) { r.Phase1Current = v }),
	"1-0:51.7.0": numericEntry(obisFieldPhase2Current, func(r *MeterReading, v float64) { r.Phase2Current = v }),
	"1-0:71.7.0": numericEntry(obisFieldPhase3Current, func(r *MeterReading, v float64) { r.Phase3Current = v }),

	"1-0:33.7.0": numericEntry(obisFieldPhase1PowerFactor, func(r *MeterReading, v float64) { r.Phase1PowerFactor = v }),
	"1-0:53.7.0": numericEntry(obisFieldPhase2PowerFactor, func(r *MeterReading, v float64) { r.Phase2PowerFactor = v }),
	"1-0:73.7.0": numericEntry(obisFieldPhase3PowerFactor, func(r *MeterReading, v float64) { r.Phase3PowerFactor = v }),

	"1-0:21.7.0": numericEntry(obisFieldPhase1Power, func(r *MeterReading, v float64) { r.Phase1Power = v }),
	"1-0:41.7.0": numericEntry(obisFieldPhase2Power, func(r *MeterReading, v float64) { r.Phase2Power = v }),
	"1-0:61.7.0": numericEntry(obisFieldPhase3Power, func(r *MeterReading, v float64) { r.Phase3Power = v }),

	"1-0:14.7.0": numericEntry(obisFieldFrequency, func(r *MeterReading, v float64) { r.Frequency = v }),
}

func numericEntry(field obisField, assign func(*MeterReading, float64)) obisEntry {
	return obisEntry{
		field: field,
		apply: func(reading *MeterReading, rawValue string) bool {
			value, err := strconv.ParseFloat(stripUnitSuffix(rawValue), 64)
			if err != nil {
				return false
			}
			assign(reading, value)
			return true
		},
	}
}

// applyMeterTime reformats the 6-digit meter clock HHMMSS to HH:MM:SS.
func applyMeterTime(reading *MeterReading, rawValue string) bool {
	if len(rawValue) < 6 {
		return false
	}
	reading.Time = rawValue[0:2] + ":" + rawValue[2:4] + ":" + rawValue[4:6]
	return true
}

// applyMeterDate reformats the 7-digit meter date to YY-MM-DD. The leading
// digit is a calendar-era/day-of-week marker and gets discarded.
func applyMeterDate(reading *MeterReading, rawValue string) bool {
	if len(rawValue) < 7 {
		return false
	}
	reading.Date = rawValue[1:3] + "-" + rawValue[3:5] + "-" + rawValue[5:7]
	return true
}

// splitOBISLine splits "code(value)" around the first '(' and the first
// ')' after it, and drops a "*<billing-channel>" suffix from the code.
func splitOBISLine(line string) (string, string, bool) {
	open := strings.Index(line, "(")
	if open < 0 {
		return "", "", false
	}
	closing := strings.Index(line[open:], ")")
	if closing < 0 {
		return "", "", false
	}
	code := line[:open]
	rawValue := line[open+1 : open+closing]
	if star := strings.Index(code, "*"); star >= 0 {
		code = code[:star]
	}
	return code, rawValue, true
}

func stripUnitSuffix(rawValue string) string {
	for _, suffix := range obisUnitSuffixes {
		if strings.HasSuffix(rawValue, suffix) {
			return strings.TrimSuffix(rawValue, suffix)
		}
	}
	return rawValue
}

// ReadingAssembler accumulates decoded fields over one telegram and
// finalizes them into a MeterReading. Malformed and unrecognized lines
// never fail the telegram; the matching fields just keep their defaults.
type ReadingAssembler struct {
	reading MeterReading
	seen    map[obisField]struct{}
}

func NewReadingAssembler() *ReadingAssembler {
	return &ReadingAssembler{
		seen: make(map[obisField]struct{}),
	}
}

func (a *ReadingAssembler) DecodeLine(line string) {
	code, rawValue, ok := splitOBISLine(line)
	if !ok {
		return
	}
	entry, ok := obisRegistry[code]
	if !ok {
		return
	}
	if entry.apply(&a.reading, rawValue) {
		a.seen[entry.field] = struct{}{}
	}
}

func (a *ReadingAssembler) sawField(field obisField) bool {
	_, ok := a.seen[field]
	return ok
}

type phaseFieldSet struct {
	power       obisField
	voltage     obisField
	current     obisField
	powerFactor obisField
}

var (
	phase1Fields = phaseFieldSet{obisFieldPhase1Power, obisFieldPhase1Voltage, obisFieldPhase1Current, obisFieldPhase1PowerFactor}
	phase2Fields = phaseFieldSet{obisFieldPhase2Power, obisFieldPhase2Voltage, obisFieldPhase2Current, obisFieldPhase2PowerFactor}
	phase3Fields = phaseFieldSet{obisFieldPhase3Power, obisFieldPhase3Voltage, obisFieldPhase3Current, obisFieldPhase3PowerFactor}
)

// Assemble finalizes the accumulated fields: phase power is derived from
// V*I*PF for phases where the telegram carried voltage and current but no
// direct power, total power is the rounded sum of the three phase powers
// whatever their origin, and the capture instant is stamped in local time.
// The confirmed identification of this cycle is the one hard precondition.
func (a *ReadingAssembler) Assemble(identification string, capturedAt time.Time) (*MeterReading, error) {
	if identification == "" {
		return nil, ErrMissingIdentification
	}
	reading := a.reading
	reading.DeviceId = identification
	reading.Phase1Power = a.phasePower(phase1Fields, reading.Phase1Power, reading.Phase1Voltage, reading.Phase1Current, reading.Phase1PowerFactor)
	reading.Phase2Power = a.phasePower(phase2Fields, reading.Phase2Power, reading.Phase2Voltage, reading.Phase2Current, reading.Phase2PowerFactor)
	reading.Phase3Power = a.phasePower(phase3Fields, reading.Phase3Power, reading.Phase3Voltage, reading.Phase3Current, reading.Phase3PowerFactor)
	reading.TotalPower = round2(reading.Phase1Power + reading.Phase2Power + reading.Phase3Power)
	reading.Timestamp = capturedAt.Format(ReadingTimestampLayout)
	return &reading, nil
}

func (a *ReadingAssembler) phasePower(fields phaseFieldSet, direct, voltage, current, powerFactor float64) float64 {
	if a.sawField(fields.power) {
		return direct
	}
	if !a.sawField(fields.voltage) || !a.sawField(fields.current) {
		return direct
	}
	pf := 1.0
	if a.sawField(fields.powerFactor) {
		pf = powerFactor
	}
	return round2(voltage * current * pf)
}
