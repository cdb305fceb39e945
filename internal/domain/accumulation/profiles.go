package accumulation

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed payers.yaml
var defaultProfiles []byte

type BillingProvider struct {
	Name    string `yaml:"name"`
	NPI     string `yaml:"npi"`
	TaxID   string `yaml:"tax_id"`
	Address string `yaml:"address"`
	City    string `yaml:"city"`
	State   string `yaml:"state"`
	Zip     string `yaml:"zip"`
}

// Profile holds a payer's EDI envelope and billing settings.
type Profile struct {
	Name              string          `yaml:"name"`
	SenderID          string          `yaml:"sender_id"`
	SenderQualifier   string          `yaml:"sender_qualifier"`
	ReceiverID        string          `yaml:"receiver_id"`
	ReceiverQualifier string          `yaml:"receiver_qualifier"`
	ReceiverName      string          `yaml:"receiver_name"`
	SubmitterName     string          `yaml:"submitter_name"`
	UsageIndicator    string          `yaml:"usage_indicator"`
	FilePrefix        string          `yaml:"file_prefix"`
	BillingProvider   BillingProvider `yaml:"billing_provider"`
}

func (p Profile) validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("payer profile without name")
	case p.SenderID == "" || len(p.SenderID) > 15:
		return fmt.Errorf("payer %s: sender_id must be 1-15 characters", p.Name)
	case p.ReceiverID == "" || len(p.ReceiverID) > 15:
		return fmt.Errorf("payer %s: receiver_id must be 1-15 characters", p.Name)
	case len(p.SenderQualifier) != 2 || len(p.ReceiverQualifier) != 2:
		return fmt.Errorf("payer %s: qualifiers must be 2 characters", p.Name)
	case p.UsageIndicator != "P" && p.UsageIndicator != "T":
		return fmt.Errorf("payer %s: usage_indicator must be P or T", p.Name)
	case p.FilePrefix == "":
		return fmt.Errorf("payer %s: file_prefix is required", p.Name)
	case len(p.BillingProvider.NPI) != 10:
		return fmt.Errorf("payer %s: billing provider npi must be 10 digits", p.Name)
	}
	return nil
}

// Profiles is keyed by payer name.
type Profiles map[string]Profile

// Names returns payer names in sorted order.
func (ps Profiles) Names() []string {
	out := make([]string, 0, len(ps))
	for n := range ps {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func ParseProfiles(data []byte) (Profiles, error) {
	var doc struct {
		Payers []Profile `yaml:"payers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse payer profiles: %w", err)
	}
	out := make(Profiles, len(doc.Payers))
	for _, p := range doc.Payers {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := out[p.Name]; dup {
			return nil, fmt.Errorf("duplicate payer profile %s", p.Name)
		}
		if p.SubmitterName == "" {
			p.SubmitterName = p.BillingProvider.Name
		}
		out[p.Name] = p
	}
	return out, nil
}

// LoadProfiles reads path, or the embedded defaults when path is empty.
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return ParseProfiles(defaultProfiles)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payer profiles: %w", err)
	}
	return ParseProfiles(data)
}
