package proposal

import "strings"

// Input carries the caller-supplied fields a proposal is generated from.
type Input struct {
	Trade       string
	ClientName  string
	ServiceType string
	Scope       string
	Price       string
	Tone        string
	Timeframe   string
	Business    string
	ABN         string
}

// Trim strips surrounding whitespace from every field.
func (in Input) Trim() Input {
	in.Trade = strings.TrimSpace(in.Trade)
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ServiceType = strings.TrimSpace(in.ServiceType)
	in.Scope = strings.TrimSpace(in.Scope)
	in.Price = strings.TrimSpace(in.Price)
	in.Tone = strings.TrimSpace(in.Tone)
	in.Timeframe = strings.TrimSpace(in.Timeframe)
	in.Business = strings.TrimSpace(in.Business)
	in.ABN = strings.TrimSpace(in.ABN)
	return in
}

// orDefault returns s unless empty.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
