package accumulation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadProfiles_Defaults(t *testing.T) {
	ps, err := LoadProfiles("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := ps.Names()
	if len(names) != 2 || names[0] != "cigna" || names[1] != "uhc" {
		t.Errorf("unexpected payers %v", names)
	}
	if ps["uhc"].UsageIndicator != "T" {
		t.Errorf("expected uhc test usage, got %s", ps["uhc"].UsageIndicator)
	}
}

func TestLoadProfiles_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payers.yaml")
	doc := `payers:
  - name: acme
    sender_id: SENDER
    sender_qualifier: ZZ
    receiver_id: ACME
    receiver_qualifier: ZZ
    receiver_name: ACME
    usage_indicator: P
    file_prefix: Acme
    billing_provider:
      name: Clinic
      npi: "1234567893"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	ps, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ps["acme"].SubmitterName != "Clinic" {
		t.Errorf("expected submitter to default to billing provider, got %q", ps["acme"].SubmitterName)
	}
}

func TestParseProfiles_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad usage": `payers: [{name: a, sender_id: S, sender_qualifier: ZZ, receiver_id: R, receiver_qualifier: ZZ,
  usage_indicator: X, file_prefix: a, billing_provider: {npi: "1234567893"}}]`,
		"long sender": `payers: [{name: a, sender_id: SENDERIDISWAYTOOLONG, sender_qualifier: ZZ, receiver_id: R,
  receiver_qualifier: ZZ, usage_indicator: P, file_prefix: a, billing_provider: {npi: "1234567893"}}]`,
		"duplicate": `payers:
  - {name: a, sender_id: S, sender_qualifier: ZZ, receiver_id: R, receiver_qualifier: ZZ, usage_indicator: P, file_prefix: a, billing_provider: {npi: "1234567893"}}
  - {name: a, sender_id: S, sender_qualifier: ZZ, receiver_id: R, receiver_qualifier: ZZ, usage_indicator: P, file_prefix: a, billing_provider: {npi: "1234567893"}}`,
		"not yaml": "payers: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseProfiles([]byte(strings.TrimSpace(doc))); err == nil {
				t.Error("expected error")
			}
		})
	}
}
