package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"slipcheck/internal/receipt/models"
)

const formatPDF = "pdf"

// PDFPatterns are labelled patterns applied to flattened receipt text. Each pattern's
// first capture group is the value. A nil pattern skips the field.
type PDFPatterns struct {
	Payer           *regexp.Regexp
	PayerAccount    *regexp.Regexp
	Receiver        *regexp.Regexp
	ReceiverAccount *regexp.Regexp
	Reason          *regexp.Regexp
	Amount          *regexp.Regexp
	Reference       *regexp.Regexp
	Date            *regexp.Regexp
}

// TransferSlipPatterns match the "Payer : ... Account ****1234 Receiver : ..." layout of
// bank transfer confirmation PDFs.
var TransferSlipPatterns = PDFPatterns{
	Payer:           regexp.MustCompile(`(?i)Payer\s*:?\s*(.+?)\s+Account\b`),
	PayerAccount:    regexp.MustCompile(`(?i)Payer\s*:?\s*.+?\s+Account\s*:?\s*([*\dX]{4,})`),
	Receiver:        regexp.MustCompile(`(?i)Receiver\s*:?\s*(.+?)\s+Account\b`),
	ReceiverAccount: regexp.MustCompile(`(?i)Receiver\s*:?\s*.+?\s+Account\s*:?\s*([*\dX]{4,})`),
	Reason:          regexp.MustCompile(`(?i)Reason\s*/\s*Type of service\s*:?\s*(.*?)\s+Transferred Amount\b`),
	Amount:          regexp.MustCompile(`(?i)Transferred Amount\s*:?\s*([\d,]+(?:\.\d+)?)\s*(?:ETB|Birr)`),
	Reference:       regexp.MustCompile(`(?i)Reference No\.?\s*(?:\(VAT Invoice No\))?\s*:?\s*([A-Z0-9]{6,})`),
	Date:            regexp.MustCompile(`(?i)Payment Date\s*&\s*Time\s*:?\s*(\d{1,2}/\d{1,2}/\d{4}(?:[,\s]+\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AP]M)?)?)`),
}

// PDFExtractor reads the text layer of a receipt PDF.
type PDFExtractor struct {
	Patterns PDFPatterns
}

// Ensure PDFExtractor implements Extractor
var _ Extractor = PDFExtractor{}

// NewPDFExtractor returns an extractor for the transfer slip layout.
func NewPDFExtractor() PDFExtractor {
	return PDFExtractor{Patterns: TransferSlipPatterns}
}

// Extract reads the text of every page and parses it.
func (e PDFExtractor) Extract(body []byte) (*models.VerifyResult, error) {
	text, err := ReadPDFText(body)
	if err != nil {
		return nil, &ParseError{Format: formatPDF, Err: err}
	}
	return e.ParseText(text)
}

// ParseText applies the patterns to already extracted text.
func (e PDFExtractor) ParseText(text string) (*models.VerifyResult, error) {
	flat := Flatten(text)
	var missing []string

	find := func(name string, re *regexp.Regexp) string {
		if re == nil {
			return ""
		}
		m := re.FindStringSubmatch(flat)
		if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
			missing = append(missing, name)
			return ""
		}
		return strings.TrimSpace(m[1])
	}

	result := &models.VerifyResult{Success: true}
	result.Payer = TitleCase(find("payer", e.Patterns.Payer))
	result.PayerAccount = find("payer account", e.Patterns.PayerAccount)
	result.Receiver = TitleCase(find("receiver", e.Patterns.Receiver))
	result.ReceiverAccount = find("receiver account", e.Patterns.ReceiverAccount)
	result.Reference = find("reference", e.Patterns.Reference)

	if raw := find("amount", e.Patterns.Amount); raw != "" {
		result.Amount = ParseAmount(raw)
		if result.Amount == nil {
			missing = append(missing, "amount")
		}
	}
	// An unparseable date leaves Date absent; only a missing label fails the receipt.
	if raw := find("date", e.Patterns.Date); raw != "" {
		result.Date = ParseDate(raw)
	}
	if e.Patterns.Reason != nil {
		if m := e.Patterns.Reason.FindStringSubmatch(flat); len(m) > 1 {
			result.Reason = strings.TrimSpace(m[1])
		}
	}

	if len(missing) > 0 {
		return nil, &ParseError{Format: formatPDF, Missing: missing}
	}
	return result, nil
}

// ParsePDFText parses transfer slip text with the default patterns.
func ParsePDFText(text string) (*models.VerifyResult, error) {
	return NewPDFExtractor().ParseText(text)
}

// ReadPDFText returns the plain text of all pages. The PDF library panics on some
// malformed inputs; those panics come back as errors.
func ReadPDFText(body []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	if len(body) == 0 {
		return "", errors.New("empty document")
	}
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(raw), nil
}
