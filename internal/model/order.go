package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of a trade order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Order is a trade order subject to maker-checker approval.
type Order struct {
	ID          string          `json:"id" db:"id"`
	PortfolioID string          `json:"portfolio_id" db:"portfolio_id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Side        OrderSide       `json:"side" db:"side"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	LimitPrice  decimal.Decimal `json:"limit_price" db:"limit_price"`
	Notes       string          `json:"notes,omitempty" db:"notes"`

	WorkflowMeta
}

func (o *Order) RecordID() string   { return o.ID }
func (o *Order) RecordType() string { return "order" }

func (o *Order) DisplayName() string {
	return fmt.Sprintf("%s %s %s @ %s", o.Side, o.Quantity.String(), o.Symbol, o.LimitPrice.String())
}

func (o *Order) Workflow() *WorkflowMeta { return &o.WorkflowMeta }

func (o *Order) Clone() Workflowable {
	clone := *o
	return &clone
}

func (o *Order) Snapshot() map[string]any {
	return map[string]any{
		"portfolio_id": o.PortfolioID,
		"symbol":       o.Symbol,
		"side":         string(o.Side),
		"quantity":     o.Quantity.String(),
		"limit_price":  o.LimitPrice.String(),
		"notes":        o.Notes,
	}
}

func (o *Order) ApplyChanges(changes map[string]any) error {
	for key, raw := range changes {
		switch key {
		case "symbol":
			s, err := changeString(key, raw)
			if err != nil {
				return err
			}
			s = strings.ToUpper(strings.TrimSpace(s))
			if s == "" {
				return fmt.Errorf("symbol must not be empty")
			}
			o.Symbol = s
		case "side":
			s, err := changeString(key, raw)
			if err != nil {
				return err
			}
			side := OrderSide(strings.ToUpper(strings.TrimSpace(s)))
			if side != SideBuy && side != SideSell {
				return fmt.Errorf("side must be BUY or SELL")
			}
			o.Side = side
		case "quantity":
			d, err := changeDecimal(key, raw)
			if err != nil {
				return err
			}
			if d.Sign() <= 0 {
				return fmt.Errorf("quantity must be positive")
			}
			o.Quantity = d
		case "limit_price":
			d, err := changeDecimal(key, raw)
			if err != nil {
				return err
			}
			if d.Sign() < 0 {
				return fmt.Errorf("limit_price must not be negative")
			}
			o.LimitPrice = d
		case "notes":
			s, err := changeString(key, raw)
			if err != nil {
				return err
			}
			o.Notes = s
		default:
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}

func changeString(key string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	return s, nil
}

// changeDecimal accepts the value shapes JSON decoding produces for numeric
// inputs: string, float64 or json.Number-like stringers.
func changeDecimal(key string, raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %q is not a valid decimal", key)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	case fmt.Stringer:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %q is not a valid decimal", key)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("field %q must be a number", key)
	}
}
