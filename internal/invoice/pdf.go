package invoice

import (
	"bytes"
	"fmt"
	"strings"

	domain "github.com/cotidiano/api/internal/domain"
)

const (
	pdfHeader     = "%PDF-1.4\n"
	dateLayout    = "2006-01-02 15:04"
	lineLeading   = 16
	textStartX    = 50
	textStartY    = 760
	textFontSize  = 12
	objectCatalog = "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n"
	objectPages   = "2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n"
	objectPage    = "3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>\nendobj\n"
	objectFont    = "4 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n"
)

// Render serialises the order into a minimal single-page PDF document.
// The output carries a fixed object graph (catalog, page tree, page, font,
// content stream) and a cross-reference table whose offsets must match the
// literal byte position of every object; readers reject any mismatch.
func Render(order domain.Order) []byte {
	stream := contentStream(documentLines(order))

	objects := []string{
		objectCatalog,
		objectPages,
		objectPage,
		objectFont,
		fmt.Sprintf("5 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(stream), stream),
	}

	var buf bytes.Buffer
	buf.WriteString(pdfHeader)

	offsets := make([]int, 0, len(objects))
	for _, obj := range objects {
		offsets = append(offsets, buf.Len())
		buf.WriteString(obj)
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF", len(objects)+1, xrefPos)

	return buf.Bytes()
}

func documentLines(order domain.Order) []string {
	date := ""
	if !order.CreatedAt.IsZero() {
		date = order.CreatedAt.Format(dateLayout)
	}

	addressParts := make([]string, 0, 3)
	for _, part := range []string{order.Shipping.Address, order.Shipping.City, order.Shipping.PostalCode} {
		if strings.TrimSpace(part) != "" {
			addressParts = append(addressParts, part)
		}
	}

	lines := []string{
		fmt.Sprintf("Factura / Pedido #%s", order.Number),
		fmt.Sprintf("Fecha: %s", date),
		fmt.Sprintf("Cliente: %s - %s", order.CustomerName, order.Email),
		fmt.Sprintf("Envio: %s", strings.Join(addressParts, ", ")),
		"",
		"Items:",
	}
	for _, item := range order.Items {
		lines = append(lines, fmt.Sprintf("- %s x%d @ $%s = $%s",
			item.Name, item.Quantity, domain.FormatAmount(item.UnitPrice), domain.FormatAmount(item.Subtotal())))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("Total: $%s", domain.FormatAmount(order.Total)),
		fmt.Sprintf("Estado: %s", order.Status),
	)
	return lines
}

func contentStream(lines []string) string {
	parts := make([]string, 0, 2*len(lines)+2)
	parts = append(parts, fmt.Sprintf("BT /F1 %d Tf %d %d Td", textFontSize, textStartX, textStartY))
	for i, line := range lines {
		if i > 0 {
			parts = append(parts, fmt.Sprintf("0 -%d Td", lineLeading))
		}
		parts = append(parts, fmt.Sprintf("(%s) Tj", escapeText(line)))
	}
	parts = append(parts, "ET")
	return strings.Join(parts, "\n")
}

// escapeText guards the three characters the string syntax reserves.
func escapeText(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch r {
		case '\\', '(', ')':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
