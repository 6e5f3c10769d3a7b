package model

import (
	"fmt"
	"strings"
)

// Portfolio is a managed book of positions, itself subject to maker-checker
// approval before it becomes tradable.
type Portfolio struct {
	ID           string `json:"id" db:"id"`
	Code         string `json:"code" db:"code"`
	Name         string `json:"name" db:"name"`
	BaseCurrency string `json:"base_currency" db:"base_currency"`
	Description  string `json:"description,omitempty" db:"description"`

	WorkflowMeta
}

func (p *Portfolio) RecordID() string   { return p.ID }
func (p *Portfolio) RecordType() string { return "portfolio" }

func (p *Portfolio) DisplayName() string {
	if p.Name != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Code)
	}
	return p.Code
}

func (p *Portfolio) Workflow() *WorkflowMeta { return &p.WorkflowMeta }

func (p *Portfolio) Clone() Workflowable {
	clone := *p
	return &clone
}

func (p *Portfolio) Snapshot() map[string]any {
	return map[string]any{
		"code":          p.Code,
		"name":          p.Name,
		"base_currency": p.BaseCurrency,
		"description":   p.Description,
	}
}

func (p *Portfolio) ApplyChanges(changes map[string]any) error {
	for key, raw := range changes {
		s, err := changeString(key, raw)
		if err != nil {
			return err
		}
		switch key {
		case "code":
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				return fmt.Errorf("code must not be empty")
			}
			p.Code = s
		case "name":
			p.Name = strings.TrimSpace(s)
		case "base_currency":
			s = strings.ToUpper(strings.TrimSpace(s))
			if len(s) != 3 {
				return fmt.Errorf("base_currency must be a 3-letter code")
			}
			p.BaseCurrency = s
		case "description":
			p.Description = s
		default:
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}
