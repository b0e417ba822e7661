package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// Category is the semantic role of a chunk within a legal document.
type Category string

const (
	// CategoryRelatorio covers the factual report section of a decision.
	CategoryRelatorio Category = "relatorio"
	// CategoryFundamentacao covers the legal reasoning.
	CategoryFundamentacao Category = "fundamentacao"
	// CategoryDispositivo covers the operative ruling.
	CategoryDispositivo Category = "dispositivo"
	// CategoryPedido covers claims raised by the plaintiff.
	CategoryPedido Category = "pedido"
	// CategoryDefesa covers defenses raised by the defendant.
	CategoryDefesa Category = "defesa"
	// CategoryProva covers evidence discussion.
	CategoryProva Category = "prova"
	// CategoryJurisprudencia covers precedent discussion.
	CategoryJurisprudencia Category = "jurisprudencia"
	// CategoryCitacao covers quoted statute or precedent text.
	CategoryCitacao Category = "citacao"
	// CategoryContexto is the fallback for text matching no vocabulary.
	CategoryContexto Category = "contexto"
)

// Categories lists every category in descending base-priority order.
func Categories() []Category {
	return []Category{
		CategoryDispositivo,
		CategoryFundamentacao,
		CategoryJurisprudencia,
		CategoryCitacao,
		CategoryProva,
		CategoryPedido,
		CategoryDefesa,
		CategoryRelatorio,
		CategoryContexto,
	}
}

// basePriority is the starting 1-10 priority per category. The ruling
// and its reasoning outrank everything; quoted statute text carries the
// same weight as precedent discussion.
var basePriority = map[Category]int{
	CategoryDispositivo:    10,
	CategoryFundamentacao:  9,
	CategoryJurisprudencia: 8,
	CategoryCitacao:        8,
	CategoryProva:          7,
	CategoryPedido:         6,
	CategoryDefesa:         6,
	CategoryRelatorio:      5,
	CategoryContexto:       3,
}

// categoryVocabulary maps each category to the lowercase markers that vote
// for it during classification.
var categoryVocabulary = map[Category][]string{
	CategoryRelatorio: {
		"relatório", "relatorio", "trata-se de", "vistos",
		"ajuizou", "reclamação trabalhista", "distribuída",
	},
	CategoryFundamentacao: {
		"fundamentação", "fundamentacao", "fundamento", "mérito", "merito",
		"passo a decidir", "passo ao exame", "analiso", "examino",
		"no caso dos autos", "razão assiste", "entendo que",
	},
	CategoryDispositivo: {
		"dispositivo", "ante o exposto", "diante do exposto", "isto posto",
		"julgo procedente", "julgo improcedente", "julgo parcialmente",
		"condeno", "absolvo", "extingo o processo",
	},
	CategoryPedido: {
		"pedido", "pede", "requer", "postula", "pleiteia", "pretende",
		"pedidos formulados", "petição inicial", "peticao inicial",
	},
	CategoryDefesa: {
		"contestação", "contestacao", "defesa", "impugna", "contesta",
		"preliminar de", "prescrição", "prescricao", "a reclamada sustenta",
	},
	CategoryProva: {
		"prova", "provas", "testemunha", "depoimento", "perícia", "pericia",
		"laudo pericial", "documento", "cartões de ponto", "cartoes de ponto",
		"ônus da prova", "onus da prova",
	},
	CategoryJurisprudencia: {
		"jurisprudência", "jurisprudencia", "súmula", "sumula",
		"orientação jurisprudencial", "orientacao jurisprudencial",
		"precedente", "tst", "entendimento consolidado", "tese firmada",
	},
	CategoryCitacao: {
		"art.", "artigo", "inciso", "parágrafo", "paragrafo", "caput",
		"nos termos do", "conforme dispõe", "conforme dispoe",
	},
}

// conceptWeight maps each domain concept to its 6-10 importance tier.
// Tiers mirror how central the concept is to labor-law retrieval.
var conceptWeight = map[string]int{
	"horas extras":           10,
	"jornada de trabalho":    9,
	"adicional noturno":      8,
	"intervalo intrajornada": 8,
	"verbas rescisórias":     9,
	"verbas rescisorias":     9,
	"aviso prévio":           8,
	"aviso previo":           8,
	"férias":                 8,
	"ferias":                 8,
	"décimo terceiro":        8,
	"decimo terceiro":        8,
	"fgts":                   8,
	"multa do art. 477":      7,
	"dano moral":             9,
	"assédio moral":          9,
	"assedio moral":          9,
	"acidente de trabalho":   8,
	"doença ocupacional":     8,
	"doenca ocupacional":     8,
	"vínculo de emprego":     10,
	"vinculo de emprego":     10,
	"vínculo empregatício":   10,
	"vinculo empregaticio":   10,
	"justa causa":            9,
	"rescisão indireta":      9,
	"rescisao indireta":      9,
	"equiparação salarial":   8,
	"equiparacao salarial":   8,
	"adicional de insalubridade":   8,
	"adicional de periculosidade":  8,
	"salário":                7,
	"salario":                7,
	"indenização":            7,
	"indenizacao":            7,
	"responsabilidade subsidiária": 7,
	"responsabilidade subsidiaria": 7,
	"terceirização":          7,
	"terceirizacao":          7,
	"grupo econômico":        6,
	"grupo economico":        6,
	"honorários":             6,
	"honorarios":             6,
	"gratuidade de justiça":  6,
	"gratuidade de justica":  6,
}

var (
	// statuteRe matches statute article citations, with or without the
	// statute name ("art. 7º, XVI, da CF", "artigo 59 da CLT").
	statuteRe = regexp.MustCompile(`(?i)art(?:igo)?\.?\s*\d+[ºo°]?(?:\s*,\s*[IVXLC]+)?(?:\s*,?\s*(?:d[aeo]\s+)?(?:CLT|CF|CPC|CC|CDC|Lei\s+n?[ºo°.]*\s*[\d./-]+))?`)

	// precedentRe matches precedent identifiers (súmulas and OJs).
	precedentRe = regexp.MustCompile(`(?i)(?:súmula|sumula|orientação jurisprudencial|orientacao jurisprudencial|oj)\s*(?:n?[ºo°.]*\s*)?\d+(?:\s+d[aeo]\s+\w+)?`)

	numberedTitleRe = regexp.MustCompile(`^(?:\d+[.)]|[IVXLC]+\s*[-–.)])\s+\S`)

	paragraphRe = regexp.MustCompile(`\n[ \t]*\n`)

	// Cut offsets are taken one byte past the pattern start: after the
	// sentence punctuation, or after the newline preceding a marker line.
	breakPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\n[A-ZÀ-Þ][A-ZÀ-Þ\s]{5,}\n`),
		regexp.MustCompile(`\n\d+[.)]\s`),
		regexp.MustCompile(`\n[IVXLC]+\s*[-–.)]\s`),
		regexp.MustCompile(`[.!?]\s+[A-ZÀ-Þ]`),
	}
)

// Classify assigns the category with the most vocabulary hits. Markers seen
// in the first quarter of the text count double, since section openers name
// the section. Ties break by base priority; no hits yields CategoryContexto.
func Classify(content string) Category {
	lower := strings.ToLower(content)
	head := lower
	if len(head) > len(lower)/4 && len(lower) >= 4 {
		head = lower[:len(lower)/4]
	}

	var best Category = CategoryContexto
	bestScore := 0
	for _, cat := range Categories() {
		score := 0
		for _, marker := range categoryVocabulary[cat] {
			score += strings.Count(lower, marker)
			score += strings.Count(head, marker)
		}
		if score > bestScore {
			best, bestScore = cat, score
		}
	}
	return best
}

// ExtractConcepts returns the domain concepts present in the content,
// sorted descending by weight then alphabetically.
func ExtractConcepts(content string) []string {
	lower := strings.ToLower(content)
	var found []string
	for concept := range conceptWeight {
		if strings.Contains(lower, concept) {
			found = append(found, concept)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		wi, wj := conceptWeight[found[i]], conceptWeight[found[j]]
		if wi != wj {
			return wi > wj
		}
		return found[i] < found[j]
	})
	return found
}

// ConceptWeight returns the 6-10 importance tier for a known concept, or
// 0 for an unknown one.
func ConceptWeight(concept string) int {
	return conceptWeight[strings.ToLower(concept)]
}

// ExtractReferences returns statute and precedent citations found in the
// content, deduplicated, in order of first appearance.
func ExtractReferences(content string) []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{statuteRe, precedentRe} {
		for _, m := range re.FindAllString(content, -1) {
			m = strings.TrimSpace(m)
			key := strings.ToLower(m)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			refs = append(refs, m)
		}
	}
	return refs
}

// computePriority combines the category base with concept and citation
// boosts, clamped to [1, 10]. The strongest concept present contributes
// its tier above 5, at most +5; citations add at most +2.
func computePriority(category Category, concepts, refs []string) int {
	p := basePriority[category]

	boost := 0
	for _, concept := range concepts {
		if w := conceptWeight[concept]; w-5 > boost {
			boost = w - 5
		}
	}
	if boost > 5 {
		boost = 5
	}
	p += boost

	citBoost := len(refs)
	if citBoost > 2 {
		citBoost = 2
	}
	p += citBoost

	if p > 10 {
		p = 10
	}
	if p < 1 {
		p = 1
	}
	return p
}
