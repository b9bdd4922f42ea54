// Package validation guarda as tabelas de regras fixas de cada endpoint e
// transforma o corpo JSON cru numa domain.Mutation tipada.
package validation

import (
	"regexp"

	"userdata-gateway/userdata/domain"
)

// FieldType é o tipo primitivo (com restrição) que um campo deve satisfazer.
type FieldType int

const (
	// NonNegativeInt: número JSON sem parte fracionária, >= 0.
	// String numérica nunca é convertida.
	NonNegativeInt FieldType = iota + 1
	// HexColor: string #RGB ou #RRGGBB, sem diferenciar maiúsculas.
	HexColor
)

func (t FieldType) String() string {
	switch t {
	case NonNegativeInt:
		return "non-negative integer"
	case HexColor:
		return "hex color"
	}
	return "unknown"
}

type Rule struct {
	Field string
	Type  FieldType
}

// ruleSet é o contrato completo de um endpoint.
type ruleSet struct {
	rules []Rule
	// exactlyOne: o corpo traz uma única chave dentre rules (settings).
	// Caso contrário todas as regras são obrigatórias.
	exactlyOne bool
}

var hexColor = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

var ruleSets = map[domain.EndpointKind]ruleSet{
	domain.KindSettings: {
		rules: []Rule{
			{Field: domain.SettingBackgroundColor, Type: HexColor},
			{Field: domain.SettingCounter, Type: NonNegativeInt},
		},
		exactlyOne: true,
	},
	domain.KindStatistics: {
		rules: []Rule{
			{Field: "average", Type: NonNegativeInt},
			{Field: "averageOf5", Type: NonNegativeInt},
		},
	},
	domain.KindTimes: {
		rules: []Rule{
			{Field: "time", Type: NonNegativeInt},
		},
	},
}

// Rules devolve uma cópia da tabela de kind, na ordem de checagem.
func Rules(kind domain.EndpointKind) []Rule {
	rs, ok := ruleSets[kind]
	if !ok {
		return nil
	}
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

func (rs ruleSet) lookup(field string) (Rule, bool) {
	for _, r := range rs.rules {
		if r.Field == field {
			return r, true
		}
	}
	return Rule{}, false
}
