// Package debt groups open debt records by customer and apportions each
// record's remaining due across the products of the originating sale. The
// package is pure: it never touches storage, never mutates its inputs, and
// the same input order always produces the same output order.
package debt

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount rejects payments that are not positive or exceed the
	// targeted line's remaining due. Nothing is mutated on rejection.
	ErrInvalidAmount = errors.New("debt: invalid payment amount")
	// ErrLineNotFound rejects payments against a line the group does not hold.
	ErrLineNotFound = errors.New("debt: line not found")
)

// Record is one open debt entry: the remainder owed on a single credit sale
// together with the sale's line items.
type Record struct {
	ID            string
	CustomerName  string
	CustomerPhone string
	Due           int64
	SaleTotal     int64
	Products      []ProductLine
}

// ProductLine is one product of the originating sale. Price is the unit
// price and Quantity the count sold, both in whole units.
type ProductLine struct {
	Key      string
	Name     string
	Price    int64
	Quantity int64
}

// LineItem is one product's share of a record's due within a customer group.
type LineItem struct {
	ProductKey   string `json:"product_key"`
	ProductName  string `json:"product_name"`
	DebtRecordID string `json:"debt_record_id"`
	ProductDue   int64  `json:"product_due"`
}

// CustomerGroup is every open debt of one customer, identified by the
// trimmed (name, phone) pair.
type CustomerGroup struct {
	Key           string     `json:"key"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	TotalDue      int64      `json:"total_due"`
	RecordIDs     []string   `json:"record_ids"`
	Lines         []LineItem `json:"lines"`
}

// RawRecord mirrors the loose shape debt data arrives in over the wire:
// amounts may be missing, negative, or not finite.
type RawRecord struct {
	ID            string
	CustomerName  string
	CustomerPhone string
	Due           float64
	SaleTotal     float64
	Products      []RawProduct
}

type RawProduct struct {
	Key      string
	Name     string
	Price    float64
	Quantity float64
}

// CustomerKey builds the grouping key for a customer. The unit separator
// keeps a name containing the phone's leading characters from colliding
// with a different split of the same concatenation.
func CustomerKey(name, phone string) string {
	return strings.TrimSpace(name) + "\x1f" + strings.TrimSpace(phone)
}

// Normalize coerces a raw record into a typed one. NaN, infinite, and
// negative amounts become zero; fractional amounts are rounded to whole
// units. Normalization never fails.
func Normalize(raw RawRecord) Record {
	rec := Record{
		ID:            raw.ID,
		CustomerName:  raw.CustomerName,
		CustomerPhone: raw.CustomerPhone,
		Due:           sanitizeAmount(raw.Due),
		SaleTotal:     sanitizeAmount(raw.SaleTotal),
	}
	if len(raw.Products) > 0 {
		rec.Products = make([]ProductLine, 0, len(raw.Products))
		for _, p := range raw.Products {
			rec.Products = append(rec.Products, ProductLine{
				Key:      p.Key,
				Name:     p.Name,
				Price:    sanitizeAmount(p.Price),
				Quantity: sanitizeAmount(p.Quantity),
			})
		}
	}
	return rec
}

func sanitizeAmount(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return int64(math.Round(v))
}

// Group partitions records by customer key. Groups appear in first-seen
// order and a group's records keep their input order. A record's due is
// apportioned across its products proportionally to each line's share of
// the sale total; the rounding residual lands on the last line so that the
// line shares of a record always sum exactly to its due. Only records still
// owing something appear in RecordIDs; records without product detail still
// count toward the group's total and record ids but emit no lines. Groups
// that end up owing nothing are dropped.
func Group(records []Record) []CustomerGroup {
	groups := make(map[string]*CustomerGroup)
	order := make([]string, 0, len(records))

	for _, rec := range records {
		key := CustomerKey(rec.CustomerName, rec.CustomerPhone)
		g, ok := groups[key]
		if !ok {
			g = &CustomerGroup{
				Key:           key,
				CustomerName:  strings.TrimSpace(rec.CustomerName),
				CustomerPhone: strings.TrimSpace(rec.CustomerPhone),
			}
			groups[key] = g
			order = append(order, key)
		}

		due := rec.Due
		if due < 0 {
			due = 0
		}
		g.TotalDue += due
		if due <= 0 {
			continue
		}
		g.RecordIDs = append(g.RecordIDs, rec.ID)

		if len(rec.Products) == 0 {
			continue
		}
		shares := apportion(due, rec)
		for i, p := range rec.Products {
			g.Lines = append(g.Lines, LineItem{
				ProductKey:   p.Key,
				ProductName:  p.Name,
				DebtRecordID: rec.ID,
				ProductDue:   shares[i],
			})
		}
	}

	out := make([]CustomerGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.TotalDue <= 0 {
			continue
		}
		out = append(out, *g)
	}
	return out
}

// apportion splits due across the record's products. When the sale total is
// unusable the due is split evenly instead. The residual repair on the last
// share makes the sum exact regardless of rounding.
func apportion(due int64, rec Record) []int64 {
	n := len(rec.Products)
	shares := make([]int64, n)
	d := decimal.NewFromInt(due)

	if rec.SaleTotal > 0 {
		total := decimal.NewFromInt(rec.SaleTotal)
		for i, p := range rec.Products {
			lineTotal := decimal.NewFromInt(p.Price * p.Quantity)
			shares[i] = d.Mul(lineTotal).Div(total).Round(0).IntPart()
		}
	} else {
		even := d.Div(decimal.NewFromInt(int64(n))).Round(0).IntPart()
		for i := range shares {
			shares[i] = even
		}
	}

	var sum int64
	for _, s := range shares {
		sum += s
	}
	shares[n-1] += due - sum
	return shares
}

// ApplyPayment returns a copy of group with amount paid against the line
// identified by (debtRecordID, productKey). The input group is never
// mutated. A payment must be positive and at most the line's remaining due;
// a line paid down to zero is removed. The second return is false when the
// group should disappear from view: no lines left or nothing owed.
func ApplyPayment(group CustomerGroup, debtRecordID, productKey string, amount int64) (CustomerGroup, bool, error) {
	if amount <= 0 {
		return group, true, ErrInvalidAmount
	}
	idx := -1
	for i, line := range group.Lines {
		if line.DebtRecordID == debtRecordID && line.ProductKey == productKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return group, true, ErrLineNotFound
	}
	if amount > group.Lines[idx].ProductDue {
		return group, true, ErrInvalidAmount
	}

	next := cloneGroup(group)
	next.Lines[idx].ProductDue -= amount
	if next.Lines[idx].ProductDue == 0 {
		next.Lines = append(next.Lines[:idx], next.Lines[idx+1:]...)
	}
	next.TotalDue -= amount
	if next.TotalDue < 0 {
		next.TotalDue = 0
	}
	keep := len(next.Lines) > 0 && next.TotalDue > 0
	return next, keep, nil
}

// SettleAll returns the ids of every record still owed in the group, for
// bulk settlement.
func SettleAll(group CustomerGroup) []string {
	ids := make([]string, len(group.RecordIDs))
	copy(ids, group.RecordIDs)
	return ids
}

func cloneGroup(g CustomerGroup) CustomerGroup {
	next := g
	next.RecordIDs = make([]string, len(g.RecordIDs))
	copy(next.RecordIDs, g.RecordIDs)
	next.Lines = make([]LineItem, len(g.Lines))
	copy(next.Lines, g.Lines)
	return next
}
