package proposal

import (
	"sort"
	"strings"
)

// tradeGeneral is the explicit default profile for unknown trades.
const tradeGeneral = "general"

// tradeProfiles maps each supported trade to the language profile injected
// into generation instructions. Unknown trades resolve to "general" at the
// boundary via NormalizeTrade.
var tradeProfiles = map[string]string{
	"electrician": `You are writing a professional proposal for an Australian licensed electrician.
Use clear, compliant electrical trade language suitable for residential or light commercial work.
Reference safe installation practices, testing, and compliance with Australian Standards where appropriate.
Avoid marketing language. Write as a qualified tradesperson quoting real work.`,

	"plumber": `You are writing a professional proposal for an Australian licensed plumber.
Use practical plumbing trade language suitable for residential or light commercial work.
Reference installation, replacement, repair, and compliance obligations where relevant.
Keep wording clear, direct, and client-ready. Avoid sales or marketing tone.`,

	"builder": `You are writing a professional proposal for an Australian builder or renovation contractor.
Use construction-industry language suitable for residential building or renovation projects.
Describe work in terms of scope, materials, sequencing, and coordination.
Write clearly and professionally, as a builder quoting real on-site work.`,

	"hvac": `You are writing a professional proposal for an Australian HVAC contractor.
Use correct heating, cooling, and ventilation trade terminology.
Reference installation, commissioning, and system performance where relevant.
Maintain a professional, technical tone suitable for residential or commercial clients.`,

	"carpenter": `You are writing a professional proposal for an Australian carpenter or joiner.
Use trade-accurate carpentry language covering framing, fix-out, or custom work.
Describe materials, workmanship, and installation methods clearly.
Write as an experienced tradesperson quoting practical carpentry work.`,

	"tiler": `You are writing a professional proposal for an Australian wall and floor tiler.
Use correct tiling terminology covering surface preparation, waterproofing, and installation.
Reference alignment, finishes, and compliance where applicable.
Keep language practical and trade-focused.`,

	"painter": `You are writing a professional proposal for an Australian painter and decorator.
Use trade language covering surface preparation, coatings, application methods, and finishes.
Avoid decorative or marketing language. Write as a professional outlining scope of painting works.`,

	"landscaper": `You are writing a professional proposal for an Australian landscaping contractor.
Use clear language describing site preparation, hardscape or softscape works, and installation.
Reference materials, layout, and practical outcomes.
Write as a contractor quoting real outdoor works.`,

	"concreter": `You are writing a professional proposal for an Australian concreting contractor.
Use trade-specific language covering formwork, reinforcement, placement, and finishing.
Describe works in practical terms suitable for residential or light commercial projects.
Avoid promotional tone.`,

	"roofer": `You are writing a professional proposal for an Australian roofing contractor.
Use correct roofing terminology covering repairs, replacement, or new installations.
Reference materials, fixing methods, and weatherproofing where relevant.
Write clearly as a tradesperson quoting roofing work.`,

	"glazier": `You are writing a professional proposal for an Australian glazier.
Use trade-appropriate language describing glazing, installation, and safety considerations.
Reference measurements, materials, and fitting practices where applicable.
Maintain a professional, technical tone.`,

	"flooring": `You are writing a professional proposal for an Australian flooring contractor.
Use correct terminology for timber, laminate, vinyl, or carpet flooring installations.
Describe preparation, installation, and finishing works clearly.
Write as a contractor quoting real flooring work.`,

	"handyman": `You are writing a professional proposal for an Australian handyman or maintenance contractor.
Use clear, practical language describing general repairs, installations, or minor works.
Keep descriptions concise and client-ready without marketing or exaggeration.`,

	"cleaner": `You are writing a professional proposal for a commercial or residential cleaning service.
Use clear service-based language focused on tasks, areas, and standards of cleanliness.
Avoid marketing phrases. Write as an established service provider outlining scope of work.`,

	tradeGeneral: `You are writing a professional proposal for an Australian trade or service contractor.
Use practical, industry-appropriate language.
Clearly describe the work, scope, and expectations without marketing or embellishment.`,
}

// NormalizeTrade lowercases and trims the supplied trade name, mapping
// anything outside the known set to "general".
func NormalizeTrade(trade string) string {
	t := strings.ToLower(strings.TrimSpace(trade))
	if _, ok := tradeProfiles[t]; ok {
		return t
	}
	return tradeGeneral
}

// Profile returns the language profile for a (normalized) trade.
func Profile(trade string) string {
	return tradeProfiles[NormalizeTrade(trade)]
}

// KnownTrades returns the supported trade names in sorted order.
func KnownTrades() []string {
	names := make([]string, 0, len(tradeProfiles))
	for t := range tradeProfiles {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
