package accumulation

import (
	"strings"
	"testing"
	"time"
)

func testProfile() Profile {
	return Profile{
		Name:              "acme",
		SenderID:          "CAREBEN",
		SenderQualifier:   "ZZ",
		ReceiverID:        "62308",
		ReceiverQualifier: "ZZ",
		ReceiverName:      "Acme Health",
		SubmitterName:     "CareBenefits",
		UsageIndicator:    "T",
		FilePrefix:        "Acme_Accumulator",
		BillingProvider: BillingProvider{
			Name: "CareBenefits Clinical", NPI: "1234567893", TaxID: "123456789",
			Address: "100 Main St", City: "New York", State: "NY", Zip: "10001",
		},
	}
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func selfClaim() Claim {
	return Claim{
		ID:                  "M1",
		SubscriberID:        "SUB*123",
		SubscriberFirstName: "Ada",
		SubscriberLastName:  "Lovelace",
		SubscriberDOB:       day(1990, 4, 2),
		PatientFirstName:    "Ada",
		PatientLastName:     "Lovelace",
		PatientDOB:          day(1990, 4, 2),
		PatientSex:          "F",
		Relationship:        RelationshipSelf,
		ProcedureCode:       "58970",
		DiagnosisCode:       "N97.9",
		ServiceStart:        day(2026, 2, 10),
		ServiceEnd:          day(2026, 2, 10),
		ChargeCents:         1255000,
		DeductibleCents:     50000,
		OOPCents:            72550,
	}
}

func TestEncode_SelfClaimExact(t *testing.T) {
	ic := Interchange{
		Profile:       testProfile(),
		ControlNumber: 42,
		Created:       time.Date(2026, 3, 5, 9, 7, 0, 0, time.UTC),
		Claims:        []Claim{selfClaim()},
	}
	got, err := Encode(ic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "ISA*00*          *00*          *ZZ*CAREBEN        *ZZ*62308          *260305*0907*^*00501*000000042*0*T*:~" +
		"GS*HC*CAREBEN*62308*20260305*0907*42*X*005010X222A1~" +
		"ST*837*0001*005010X222A1~" +
		"BHT*0019*00*M1*20260305*0907*CH~" +
		"NM1*41*2*CAREBENEFITS*****46*CAREBEN~" +
		"NM1*40*2*ACME HEALTH*****46*62308~" +
		"HL*1**20*1~" +
		"NM1*85*2*CAREBENEFITS CLINICAL*****XX*1234567893~" +
		"N3*100 MAIN ST~" +
		"N4*NEW YORK*NY*10001~" +
		"REF*EI*123456789~" +
		"HL*2*1*22*0~" +
		"SBR*P*18*******CI~" +
		"NM1*IL*1*LOVELACE*ADA****MI*SUB123~" +
		"DMG*D8*19900402*F~" +
		"NM1*PR*2*ACME HEALTH*****PI*62308~" +
		"CLM*M1*12550***11:B:1*Y*A*Y*Y~" +
		"DTP*472*D8*20260210~" +
		"HI*ABK:N979~" +
		"LX*1~" +
		"SV1*HC:58970*12550*UN*1***1~" +
		"CAS*PR*1*500~" +
		"CAS*PR*3*225.5~" +
		"SE*22*0001~" +
		"GE*1*42~" +
		"IEA*1*000000042~"
	if string(got) != want {
		t.Errorf("encoded mismatch\n got: %s\nwant: %s", got, want)
	}
	if strings.Contains(string(got), "\n") {
		t.Error("expected no newlines")
	}
}

func TestEncode_DependentClaim(t *testing.T) {
	child := selfClaim()
	child.ID = "M2"
	child.Relationship = RelationshipChild
	child.PatientFirstName = "Byron"
	child.PatientDOB = day(2020, 1, 15)
	child.PatientSex = "M"
	child.ServiceEnd = day(2026, 2, 12)
	child.DeductibleCents = 0
	child.OOPCents = 0

	got, err := Encode(Interchange{
		Profile:       testProfile(),
		ControlNumber: 7,
		Created:       time.Date(2026, 3, 5, 9, 7, 0, 0, time.UTC),
		Claims:        []Claim{selfClaim(), child},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(got)
	for _, seg := range []string{
		"ST*837*0002*005010X222A1~",
		"BHT*0019*00*M2*20260305*0907*CH~",
		"HL*2*1*22*1~",
		"SBR*P********CI~",
		"DMG*D8*19900402*U~",
		"HL*3*2*23*0~",
		"PAT*19~",
		"NM1*QC*1*LOVELACE*BYRON~",
		"DMG*D8*20200115*M~",
		"DTP*472*RD8*20260210-20260212~",
		"SE*24*0002~",
		"GE*2*7~",
		"IEA*1*000000007~",
	} {
		if !strings.Contains(s, seg) {
			t.Errorf("expected segment %s", seg)
		}
	}
	second := s[strings.Index(s, "ST*837*0002"):]
	if strings.Contains(second, "CAS*") {
		t.Error("expected no CAS segments for zero responsibility")
	}
}

func TestEncode_Errors(t *testing.T) {
	if _, err := Encode(Interchange{Profile: testProfile(), ControlNumber: 1}); err == nil {
		t.Error("expected error for empty interchange")
	}
	if _, err := Encode(Interchange{Profile: testProfile(), ControlNumber: 1000000000, Claims: []Claim{selfClaim()}}); err == nil {
		t.Error("expected error for control number overflow")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{
		12500: "125",
		12550: "125.5",
		12505: "125.05",
		0:     "0",
		99:    "0.99",
		-1500: "-15",
	}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Errorf("FormatAmount(%d): expected %s, got %s", in, want, got)
		}
	}
}
