package accumulation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// X12 delimiters.
const (
	elementSep    = "*"
	componentSep  = ":"
	repetitionSep = "^"
	segmentTerm   = "~"
)

const implementationGuide = "005010X222A1"

// Claim is one accumulator record rendered as an 837P transaction set.
type Claim struct {
	ID                  string
	SubscriberID        string
	SubscriberFirstName string
	SubscriberLastName  string
	SubscriberDOB       time.Time
	PatientFirstName    string
	PatientLastName     string
	PatientDOB          time.Time
	PatientSex          string
	Relationship        Relationship
	ProcedureCode       string
	DiagnosisCode       string
	ServiceStart        time.Time
	ServiceEnd          time.Time
	ChargeCents         int64
	DeductibleCents     int64
	OOPCents            int64
}

// Interchange is one ISA/IEA envelope with a single functional group.
type Interchange struct {
	Profile       Profile
	ControlNumber int
	Created       time.Time
	Claims        []Claim
}

var stripper = strings.NewReplacer(elementSep, "", componentSep, "", repetitionSep, "", segmentTerm, "", "\r", "", "\n", "")

// clean removes delimiters from a value.
func clean(v string) string {
	return strings.TrimSpace(stripper.Replace(v))
}

func name(v string) string {
	return strings.ToUpper(clean(v))
}

// FormatAmount renders cents as a decimal without trailing zeros.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100
	switch {
	case frac == 0:
		return sign + whole
	case frac%10 == 0:
		return fmt.Sprintf("%s%s.%d", sign, whole, frac/10)
	default:
		return fmt.Sprintf("%s%s.%02d", sign, whole, frac)
	}
}

func pad(v string, n int) string {
	if len(v) >= n {
		return v[:n]
	}
	return v + strings.Repeat(" ", n-len(v))
}

type segmentWriter struct {
	b     strings.Builder
	count int
}

func (w *segmentWriter) seg(elements ...string) {
	// Trailing empty elements are dropped per X12 rules.
	n := len(elements)
	for n > 1 && elements[n-1] == "" {
		n--
	}
	w.b.WriteString(strings.Join(elements[:n], elementSep))
	w.b.WriteString(segmentTerm)
	w.count++
}

func d8(t time.Time) string { return t.Format("20060102") }

// Encode renders the interchange. Claims must already be validated.
func Encode(ic Interchange) ([]byte, error) {
	if len(ic.Claims) == 0 {
		return nil, fmt.Errorf("interchange has no claims")
	}
	if ic.ControlNumber <= 0 || ic.ControlNumber > 999999999 {
		return nil, fmt.Errorf("control number %d out of range", ic.ControlNumber)
	}
	p := ic.Profile
	ctrl := strconv.Itoa(ic.ControlNumber)
	w := &segmentWriter{}

	w.seg("ISA", "00", pad("", 10), "00", pad("", 10),
		p.SenderQualifier, pad(clean(p.SenderID), 15),
		p.ReceiverQualifier, pad(clean(p.ReceiverID), 15),
		ic.Created.Format("060102"), ic.Created.Format("1504"),
		repetitionSep, "00501", fmt.Sprintf("%09d", ic.ControlNumber), "0", p.UsageIndicator, componentSep)
	w.seg("GS", "HC", clean(p.SenderID), clean(p.ReceiverID), d8(ic.Created), ic.Created.Format("1504"), ctrl, "X", implementationGuide)

	for i, c := range ic.Claims {
		writeTransaction(w, p, ic.Created, fmt.Sprintf("%04d", i+1), c)
	}

	w.seg("GE", strconv.Itoa(len(ic.Claims)), ctrl)
	w.seg("IEA", "1", fmt.Sprintf("%09d", ic.ControlNumber))
	return []byte(w.b.String()), nil
}

func writeTransaction(w *segmentWriter, p Profile, created time.Time, stControl string, c Claim) {
	start := w.count
	bp := p.BillingProvider
	dependent := c.Relationship != RelationshipSelf

	w.seg("ST", "837", stControl, implementationGuide)
	w.seg("BHT", "0019", "00", clean(c.ID), d8(created), created.Format("1504"), "CH")

	// 1000A submitter, 1000B receiver
	w.seg("NM1", "41", "2", name(p.SubmitterName), "", "", "", "", "46", clean(p.SenderID))
	w.seg("NM1", "40", "2", name(p.ReceiverName), "", "", "", "", "46", clean(p.ReceiverID))

	// 2000A billing provider
	w.seg("HL", "1", "", "20", "1")
	w.seg("NM1", "85", "2", name(bp.Name), "", "", "", "", "XX", clean(bp.NPI))
	w.seg("N3", name(bp.Address))
	w.seg("N4", name(bp.City), name(bp.State), clean(bp.Zip))
	w.seg("REF", "EI", clean(bp.TaxID))

	// 2000B subscriber
	child := "0"
	if dependent {
		child = "1"
	}
	w.seg("HL", "2", "1", "22", child)
	rel := ""
	if !dependent {
		rel = relationshipCodes[RelationshipSelf]
	}
	w.seg("SBR", "P", rel, "", "", "", "", "", "", "CI")
	w.seg("NM1", "IL", "1", name(c.SubscriberLastName), name(c.SubscriberFirstName), "", "", "", "MI", clean(c.SubscriberID))
	subSex := "U"
	if !dependent {
		subSex = name(c.PatientSex)
	}
	w.seg("DMG", "D8", d8(c.SubscriberDOB), subSex)
	w.seg("NM1", "PR", "2", name(p.ReceiverName), "", "", "", "", "PI", clean(p.ReceiverID))

	// 2000C patient
	if dependent {
		w.seg("HL", "3", "2", "23", "0")
		w.seg("PAT", relationshipCodes[c.Relationship])
		w.seg("NM1", "QC", "1", name(c.PatientLastName), name(c.PatientFirstName))
		w.seg("DMG", "D8", d8(c.PatientDOB), name(c.PatientSex))
	}

	// 2300 claim
	charge := FormatAmount(c.ChargeCents)
	w.seg("CLM", clean(c.ID), charge, "", "", "11"+componentSep+"B"+componentSep+"1", "Y", "A", "Y", "Y")
	if c.ServiceEnd.IsZero() || c.ServiceEnd.Equal(c.ServiceStart) {
		w.seg("DTP", "472", "D8", d8(c.ServiceStart))
	} else {
		w.seg("DTP", "472", "RD8", d8(c.ServiceStart)+"-"+d8(c.ServiceEnd))
	}
	w.seg("HI", "ABK"+componentSep+strings.ReplaceAll(name(c.DiagnosisCode), ".", ""))

	// 2400 service line
	w.seg("LX", "1")
	w.seg("SV1", "HC"+componentSep+name(c.ProcedureCode), charge, "UN", "1", "", "", "1")
	if c.DeductibleCents != 0 {
		w.seg("CAS", "PR", "1", FormatAmount(c.DeductibleCents))
	}
	if coins := c.OOPCents - c.DeductibleCents; coins != 0 {
		w.seg("CAS", "PR", "3", FormatAmount(coins))
	}

	w.seg("SE", strconv.Itoa(w.count-start+1), stControl)
}
