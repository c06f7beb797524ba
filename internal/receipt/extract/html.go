package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"slipcheck/internal/receipt/models"
)

const formatHTML = "html"

// Field is a canonical receipt field.
type Field string

const (
	FieldPayer           Field = "payer"
	FieldPayerAccount    Field = "payer account"
	FieldReceiver        Field = "receiver"
	FieldReceiverAccount Field = "receiver account"
	FieldAmount          Field = "amount"
	FieldDate            Field = "date"
	FieldReference       Field = "reference"
	FieldReason          Field = "reason"
)

// fieldOrder fixes the order fields are matched in, so an ambiguous label always
// lands on the same field.
var fieldOrder = []Field{
	FieldReceiverAccount,
	FieldPayerAccount,
	FieldReceiver,
	FieldPayer,
	FieldAmount,
	FieldReference,
	FieldDate,
	FieldReason,
}

// HTMLRules maps each field to the label synonyms a bank uses for it.
// Synonyms are compared after NormalizeLabel.
type HTMLRules struct {
	Synonyms map[Field][]string
}

// HTMLExtractor reads label/value receipt tables.
type HTMLExtractor struct {
	rules map[Field][]string
}

// Ensure HTMLExtractor implements Extractor
var _ Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor normalizes the synonyms once.
func NewHTMLExtractor(rules HTMLRules) *HTMLExtractor {
	normalized := make(map[Field][]string, len(rules.Synonyms))
	for field, synonyms := range rules.Synonyms {
		for _, s := range synonyms {
			if n := NormalizeLabel(s); n != "" {
				normalized[field] = append(normalized[field], n)
			}
		}
	}
	return &HTMLExtractor{rules: normalized}
}

// Extract scans table rows first, then elements whose class or id names a field.
// Receiver and amount are required.
func (e *HTMLExtractor) Extract(body []byte) (*models.VerifyResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Format: formatHTML, Err: err}
	}

	values := make(map[Field]string)
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		texts := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			texts = append(texts, Flatten(cell.Text()))
		})
		for _, pair := range labelValuePairs(texts) {
			e.assign(values, pair[0], pair[1])
		}
	})

	for _, field := range fieldOrder {
		if _, ok := values[field]; ok {
			continue
		}
		if v := e.scanAttributes(doc, field); v != "" {
			values[field] = v
		}
	}

	result := &models.VerifyResult{
		Success:         true,
		Payer:           values[FieldPayer],
		PayerAccount:    values[FieldPayerAccount],
		Receiver:        values[FieldReceiver],
		ReceiverAccount: values[FieldReceiverAccount],
		Reference:       values[FieldReference],
		Reason:          values[FieldReason],
		Amount:          ParseAmount(values[FieldAmount]),
		Date:            ParseDate(values[FieldDate]),
	}

	var missing []string
	if result.Receiver == "" {
		missing = append(missing, string(FieldReceiver))
	}
	if result.Amount == nil {
		missing = append(missing, string(FieldAmount))
	}
	if len(missing) > 0 {
		return nil, &ParseError{Format: formatHTML, Missing: missing}
	}
	return result, nil
}

// labelValuePairs recognizes the row shapes receipts use:
// [label, value], [label, separator, value], ["label: value"], and wide rows of pairs.
func labelValuePairs(cells []string) [][2]string {
	switch len(cells) {
	case 0:
		return nil
	case 1:
		if label, value, ok := splitCombined(cells[0]); ok {
			return [][2]string{{label, value}}
		}
		return nil
	case 2:
		return [][2]string{{cells[0], cells[1]}}
	case 3:
		if isSeparator(cells[1]) {
			return [][2]string{{cells[0], cells[2]}}
		}
		return [][2]string{{cells[0], cells[1]}}
	}

	var pairs [][2]string
	for i := 0; i+1 < len(cells); i += 2 {
		pairs = append(pairs, [2]string{cells[i], cells[i+1]})
	}
	return pairs
}

func splitCombined(cell string) (string, string, bool) {
	idx := strings.IndexAny(cell, ":=")
	if idx <= 0 {
		return "", "", false
	}
	label := strings.TrimSpace(cell[:idx])
	value := strings.TrimSpace(cell[idx+1:])
	return label, value, label != "" && value != ""
}

func isSeparator(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == ":" || s == "=" || s == "-"
}

func (e *HTMLExtractor) assign(values map[Field]string, label, value string) {
	value = strings.TrimSpace(strings.TrimLeft(value, ":= "))
	if value == "" {
		return
	}
	norm := NormalizeLabel(label)
	if norm == "" {
		return
	}
	for _, field := range fieldOrder {
		if _, ok := values[field]; ok {
			continue
		}
		for _, synonym := range e.rules[field] {
			if norm == synonym {
				values[field] = value
				return
			}
		}
	}
}

func (e *HTMLExtractor) scanAttributes(doc *goquery.Document, field Field) string {
	var found string
	for _, synonym := range e.rules[field] {
		key := compactLabel(synonym)
		doc.Find("[class], [id]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			class, _ := sel.Attr("class")
			id, _ := sel.Attr("id")
			if !strings.Contains(compactLabel(class+" "+id), key) {
				return true
			}
			text := Flatten(sel.Text())
			if _, value, ok := splitCombined(text); ok {
				text = value
			}
			if text == "" {
				return true
			}
			found = text
			return false
		})
		if found != "" {
			return found
		}
	}
	return ""
}

var labelSeparators = strings.NewReplacer(" ", "", "-", "", "_", "")

func compactLabel(s string) string {
	return labelSeparators.Replace(strings.ToLower(s))
}
