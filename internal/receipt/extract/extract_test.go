package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipcheck/internal/receipt/extract/pdftest"
)

const transferSlip = "Payer : John Doe Account ****1234 Receiver : Jane Roe Account ****5678 " +
	"Reason / Type of service : Transfer Transferred Amount : 1,250.00 ETB " +
	"Reference No. (VAT Invoice No) : FT24123ABC123 Payment Date & Time : 12/01/2024 10:30 AM"

func TestParsePDFText(t *testing.T) {
	t.Run("transfer slip", func(t *testing.T) {
		result, err := ParsePDFText(transferSlip)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, "John Doe", result.Payer)
		assert.Equal(t, "****1234", result.PayerAccount)
		assert.Equal(t, "Jane Roe", result.Receiver)
		assert.Equal(t, "****5678", result.ReceiverAccount)
		assert.Equal(t, "Transfer", result.Reason)
		assert.Equal(t, "FT24123ABC123", result.Reference)
		require.NotNil(t, result.Amount)
		assert.True(t, result.Amount.Equal(decimal.RequireFromString("1250.00")))
		require.NotNil(t, result.Date)
		assert.Equal(t, time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC), *result.Date)
	})

	t.Run("multi-line text and upper-case names", func(t *testing.T) {
		text := "Payer :\n  JOHN   DOE\nAccount ****1234\nReceiver : jane roe Account ****5678\n" +
			"Transferred Amount : 99.5 ETB\nReference No. (VAT Invoice No) : FT1234567\n" +
			"Payment Date & Time : 3/2/2024, 4:05:06 PM"
		result, err := ParsePDFText(text)
		require.NoError(t, err)
		assert.Equal(t, "John Doe", result.Payer)
		assert.Equal(t, "Jane Roe", result.Receiver)
		assert.Equal(t, "", result.Reason)
		assert.Equal(t, time.Date(2024, 2, 3, 16, 5, 6, 0, time.UTC), *result.Date)
	})

	t.Run("invalid date is absent", func(t *testing.T) {
		text := strings.Replace(transferSlip, "12/01/2024 10:30 AM", "31/02/2024 10:30 AM", 1)
		result, err := ParsePDFText(text)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Nil(t, result.Date)
		assert.Equal(t, "Jane Roe", result.Receiver)
	})

	t.Run("missing fields are a parse error", func(t *testing.T) {
		_, err := ParsePDFText("Payer : John Doe Account ****1234 Transferred Amount : 10.00 ETB")
		require.Error(t, err)

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, parseErr.Missing, "receiver")
		assert.Contains(t, parseErr.Missing, "reference")
		assert.Contains(t, err.Error(), "pdf receipt missing")
	})
}

func TestPDFExtractorReadsDocument(t *testing.T) {
	body := pdftest.Build(
		"Payer : John Doe Account ****1234",
		"Receiver : Jane Roe Account ****5678",
		"Reason / Type of service : Transfer Transferred Amount : 1,250.00 ETB",
		"Reference No. (VAT Invoice No) : FT24123ABC123",
		"Payment Date & Time : 12/01/2024 10:30 AM",
	)

	result, err := NewPDFExtractor().Extract(body)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", result.Receiver)
	assert.Equal(t, "FT24123ABC123", result.Reference)
	assert.True(t, result.Amount.Equal(decimal.RequireFromString("1250")))
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	_, err := NewPDFExtractor().Extract([]byte("<html>not a pdf</html>"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "pdf", parseErr.Format)

	_, err = NewPDFExtractor().Extract(nil)
	require.ErrorAs(t, err, &parseErr)
}

var testRules = HTMLRules{Synonyms: map[Field][]string{
	FieldReceiver:        {"Receiver Name", "Beneficiary Name", "Recipient"},
	FieldReceiverAccount: {"Receiver Account", "Beneficiary Account"},
	FieldPayer:           {"Sender Name", "Payer"},
	FieldAmount:          {"Amount", "Transferred Amount"},
	FieldReference:       {"Transaction Reference", "Reference No."},
	FieldDate:            {"Transaction Date"},
	FieldReason:          {"Narrative"},
}}

func TestHTMLExtractor(t *testing.T) {
	extractor := NewHTMLExtractor(testRules)

	t.Run("two-cell rows", func(t *testing.T) {
		html := `<table>
			<tr><td>Receiver Name</td><td>Jane Roe</td></tr>
			<tr><td>Amount</td><td>500.00</td></tr>
		</table>`
		result, err := extractor.Extract([]byte(html))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "Jane Roe", result.Receiver)
		assert.True(t, result.Amount.Equal(decimal.NewFromFloat(500.0)))
	})

	t.Run("three-cell and combined rows", func(t *testing.T) {
		html := `<table>
			<tr><th>Beneficiary  Name</th><td>:</td><td>Jane Roe</td></tr>
			<tr><td>Sender Name: John Doe</td></tr>
			<tr><td>Transferred Amount = ETB 1,250.00</td></tr>
			<tr><td>Reference No.</td><td>-</td><td>AB12345</td></tr>
			<tr><td>Transaction Date</td><td>2024-01-12 10:30:00</td></tr>
			<tr><td>Narrative</td><td>rent</td><td>ignored</td></tr>
		</table>`
		result, err := extractor.Extract([]byte(html))
		require.NoError(t, err)
		assert.Equal(t, "Jane Roe", result.Receiver)
		assert.Equal(t, "John Doe", result.Payer)
		assert.Equal(t, "AB12345", result.Reference)
		assert.Equal(t, "rent", result.Reason)
		assert.True(t, result.Amount.Equal(decimal.RequireFromString("1250")))
		assert.Equal(t, time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC), *result.Date)
	})

	t.Run("class and id fallback", func(t *testing.T) {
		html := `<div>
			<span class="receiver-name">Jane Roe</span>
			<p id="transferred_amount">Amount: 75.25 ETB</p>
		</div>`
		result, err := extractor.Extract([]byte(html))
		require.NoError(t, err)
		assert.Equal(t, "Jane Roe", result.Receiver)
		assert.True(t, result.Amount.Equal(decimal.RequireFromString("75.25")))
	})

	t.Run("invalid date is absent", func(t *testing.T) {
		html := `<table>
			<tr><td>Recipient</td><td>Jane Roe</td></tr>
			<tr><td>Amount</td><td>10</td></tr>
			<tr><td>Transaction Date</td><td>not a date</td></tr>
		</table>`
		result, err := extractor.Extract([]byte(html))
		require.NoError(t, err)
		assert.Nil(t, result.Date)
	})

	t.Run("no matching labels", func(t *testing.T) {
		html := `<table><tr><td>Status</td><td>Unknown</td></tr></table>`
		_, err := extractor.Extract([]byte(html))
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.ElementsMatch(t, []string{"receiver", "amount"}, parseErr.Missing)
	})
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1,250.00 ETB": "1250",
		"ETB 500":      "500",
		"0.5":          "0.5",
	}
	for in, want := range cases {
		got := ParseAmount(in)
		require.NotNil(t, got, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), in)
	}
	assert.Nil(t, ParseAmount(""))
	assert.Nil(t, ParseAmount("ETB"))
	assert.Nil(t, ParseAmount("1.2.3"))
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"12/01/2024 10:30 AM", time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC)},
		{"12/01/2024 12:15 AM", time.Date(2024, 1, 12, 0, 15, 0, 0, time.UTC)},
		{"1/2/2024", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-03-04T05:06:07Z", time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)},
		{"Jan 2, 2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"02-Jan-2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := ParseDate(tc.in)
		require.NotNil(t, got, tc.in)
		assert.True(t, tc.want.Equal(*got), tc.in)
	}

	for _, bad := range []string{"", "31/02/2024", "12/13/2024", "12/01/2024 13:00 PM", "yesterday"} {
		assert.Nil(t, ParseDate(bad), bad)
	}
}

func TestLabelHelpers(t *testing.T) {
	assert.Equal(t, "reason type of service", NormalizeLabel("Reason / Type of  Service:"))
	assert.Equal(t, "reference no vat invoice no", NormalizeLabel("Reference No. (VAT Invoice No)"))
	assert.Equal(t, "a b c", Flatten(" a\n\tb   c "))
	assert.Equal(t, "Jane Roe", TitleCase("JANE  ROE"))
}
