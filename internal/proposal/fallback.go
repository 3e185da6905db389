package proposal

import (
	"strconv"
	"strings"
)

// Fallback deterministically assembles a fixed-structure proposal from the
// caller-supplied fields alone. It never calls the completion provider and
// always succeeds, so generation has a defined result under total provider
// failure. Section numbers after Scope of Work are computed because the
// Timeframe section is present only when a timeframe was supplied.
func Fallback(in Input) string {
	in = in.Trim()

	client := orDefault(in.ClientName, "Client")
	service := orDefault(in.ServiceType, "the requested work")

	var lines []string

	lines = append(lines, "Proposal for: "+client, "")

	lines = append(lines, "1. Overview")
	if in.Business != "" {
		lines = append(lines,
			"This proposal outlines the scope of works for "+service+" to be carried out by "+in.Business+". "+
				"The work will be completed in accordance with standard trade practices and applicable requirements.")
	} else {
		lines = append(lines,
			"This proposal outlines the scope of works for "+service+". "+
				"The work will be completed in accordance with standard trade practices and applicable requirements.")
	}
	lines = append(lines, "")

	lines = append(lines, "2. Scope of Work")
	if in.Scope != "" {
		for _, bullet := range MechanicalBullets(in.Scope) {
			lines = append(lines, "- "+bullet)
		}
	} else {
		lines = append(lines, "- Details to be confirmed")
	}
	lines = append(lines, "")

	section := 3
	if in.Timeframe != "" {
		lines = append(lines, numbered(section, "Timeframe"), in.Timeframe, "")
		section++
	}

	lines = append(lines, numbered(section, "Pricing"))
	if in.Price != "" {
		lines = append(lines, in.Price)
	} else {
		lines = append(lines, "Pricing to be confirmed.")
	}
	lines = append(lines, "")
	section++

	lines = append(lines, numbered(section, "Acceptance / Next Steps"))
	lines = append(lines,
		"Please review the details above and contact us by phone or email "+
			"to confirm acceptance or discuss any questions. If you have any modifications please feel free to contact us")
	lines = append(lines, "", "Kind regards,")
	if in.Business != "" {
		lines = append(lines, in.Business)
	}

	return strings.Join(lines, "\n")
}

func numbered(n int, title string) string {
	return strconv.Itoa(n) + ". " + title
}

// MechanicalBullets converts raw scope lines into clean bullet text:
// leading bullet markers are stripped and blank lines dropped.
func MechanicalBullets(scope string) []string {
	var bullets []string
	for _, line := range strings.Split(scope, "\n") {
		clean := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-* \t"))
		if clean != "" {
			bullets = append(bullets, clean)
		}
	}
	return bullets
}
