package render

import (
	"bytes"
	"fmt"
	"strings"
)

// PDF layout constants: A4 page, 12pt Helvetica, 16pt leading.
const (
	pageWidth  = 595
	pageHeight = 842
	marginX    = 54
	marginTop  = 64
	fontSize   = 12
	leading    = 16
	maxCols    = 88
	linesPage  = (pageHeight - 2*marginTop) / leading
)

// Document renders finalized proposal text plus branding fields into a
// plain single-column PDF byte stream. The layout is intentionally
// minimal; the proposal text carries its own structure.
func Document(businessName, proposalText string) []byte {
	var lines []string
	if businessName != "" {
		lines = append(lines, businessName, "")
	}
	for _, raw := range strings.Split(strings.ReplaceAll(proposalText, "\r\n", "\n"), "\n") {
		lines = append(lines, wrap(raw, maxCols)...)
	}

	var pages [][]string
	for len(lines) > linesPage {
		pages = append(pages, lines[:linesPage])
		lines = lines[linesPage:]
	}
	pages = append(pages, lines)

	return assemble(pages)
}

// wrap splits a line on word boundaries to fit the column budget.
func wrap(line string, cols int) []string {
	if len(line) <= cols {
		return []string{line}
	}
	var out []string
	words := strings.Fields(line)
	current := ""
	for _, w := range words {
		switch {
		case current == "":
			current = w
		case len(current)+1+len(w) <= cols:
			current += " " + w
		default:
			out = append(out, current)
			current = w
		}
	}
	if current != "" {
		out = append(out, current)
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

func escapePDF(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	s = strings.ReplaceAll(s, ")", `\)`)
	return s
}

func contentStream(lines []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "BT\n/F1 %d Tf\n%d TL\n%d %d Td\n", fontSize, leading, marginX, pageHeight-marginTop)
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escapePDF(line))
	}
	b.WriteString("ET\n")
	return b.Bytes()
}

// assemble writes the PDF object graph: catalog, page tree, font, then a
// page + content stream pair per page, finishing with the xref table.
func assemble(pages [][]string) []byte {
	var buf bytes.Buffer
	var offsets []int

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// Object numbering: 1 catalog, 2 pages, 3 font, then page/content pairs.
	firstPageObj := 4
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPageObj+2*i)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, pageLines := range pages {
		pageObj := firstPageObj + 2*i
		writeObj(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pageWidth, pageHeight, pageObj+1))

		content := contentStream(pageLines)
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefStart)

	return buf.Bytes()
}
