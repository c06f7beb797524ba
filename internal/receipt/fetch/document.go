package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"slipcheck/internal/receipt/retry"
)

var pdfMagic = []byte("%PDF-")

// ErrUnexpectedDocument is returned by acceptance checks that reject a document.
var ErrUnexpectedDocument = errors.New("unexpected document")

// IsPDF reports whether the document is a PDF by magic bytes or declared content type.
func IsPDF(doc *Document) bool {
	if doc == nil {
		return false
	}
	if bytes.HasPrefix(bytes.TrimLeft(doc.Body, " \t\r\n"), pdfMagic) {
		return true
	}
	return strings.Contains(strings.ToLower(doc.ContentType), "application/pdf")
}

// ContainsMarker reports whether the body contains marker, case-insensitively.
func ContainsMarker(doc *Document, marker string) bool {
	if doc == nil {
		return false
	}
	return bytes.Contains(bytes.ToLower(doc.Body), []byte(strings.ToLower(marker)))
}

// RequirePDF is an acceptance check for tiers that must yield a PDF.
func RequirePDF(doc *Document) error {
	if !IsPDF(doc) {
		return fmt.Errorf("%w: not a PDF (content type %q)", ErrUnexpectedDocument, contentType(doc))
	}
	return nil
}

// RequireMarker returns an acceptance check that demands marker in the body.
func RequireMarker(marker string) func(*Document) error {
	return func(doc *Document) error {
		if !ContainsMarker(doc, marker) {
			return fmt.Errorf("%w: missing %q", ErrUnexpectedDocument, marker)
		}
		return nil
	}
}

func contentType(doc *Document) string {
	if doc == nil {
		return ""
	}
	return doc.ContentType
}

// Reachable fetches url through t and treats any answer other than a transport failure
// or server error as reachable.
func Reachable(ctx context.Context, t Tier, url string) error {
	_, err := t.Fetch(ctx, url)
	if err == nil || retry.IsClientError(err) || errors.Is(err, ErrUnexpectedDocument) {
		return nil
	}
	return err
}
