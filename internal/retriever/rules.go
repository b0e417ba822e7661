package retriever

import (
	"strings"

	"github.com/fyrsmithlabs/lexrag/internal/chunker"
)

// QueryType is the classified intent of an incoming query.
type QueryType string

const (
	// QueryCaselaw looks for precedent (súmulas, consolidated rulings).
	QueryCaselaw QueryType = "caselaw"
	// QueryFacts analyzes the facts and evidence of the case.
	QueryFacts QueryType = "facts"
	// QueryLegalBasis looks for statutes and legal grounding.
	QueryLegalBasis QueryType = "legalbasis"
	// QueryStructure asks about document structure and sections.
	QueryStructure QueryType = "structure"
	// QueryStyle asks about drafting style and phrasing.
	QueryStyle QueryType = "style"
	// QueryProcedure asks about procedural steps and deadlines.
	QueryProcedure QueryType = "procedure"
	// QueryGeneral is the fallback type.
	QueryGeneral QueryType = "general"
)

// typeRule pairs a query type with the lowercase keywords that select it.
type typeRule struct {
	qtype    QueryType
	keywords []string
}

// typeRules is evaluated in order; the first rule with a keyword hit wins.
// More specific intents come first so e.g. "estilo da fundamentação"
// classifies as style, not legal basis.
var typeRules = []typeRule{
	{QueryStructure, []string{
		"estrutura", "modelo de sentença", "modelo de sentenca", "seção", "secao",
		"como organizar", "formato", "esqueleto",
	}},
	{QueryStyle, []string{
		"estilo", "linguagem", "redação", "redacao", "como escrever",
		"expressão", "expressao", "conectores", "tom",
	}},
	{QueryCaselaw, []string{
		"jurisprudência", "jurisprudencia", "súmula", "sumula", "precedente",
		"orientação jurisprudencial", "orientacao jurisprudencial",
		"entendimento do tst", "tese",
	}},
	{QueryLegalBasis, []string{
		"fundamento legal", "base legal", "artigo", "art.", "lei",
		"dispositivo legal", "clt", "constituição", "constituicao", "amparo legal",
	}},
	{QueryProcedure, []string{
		"procedimento", "rito", "prazo", "recurso", "audiência", "audiencia",
		"intimação", "intimacao", "tramitação", "tramitacao",
	}},
	{QueryFacts, []string{
		"fatos", "prova", "provas", "testemunha", "depoimento", "ocorreu",
		"aconteceu", "alegou", "narrativa",
	}},
}

// preferredCategories lists, per query type, the chunk categories that
// best answer it, most preferred first.
var preferredCategories = map[QueryType][]chunker.Category{
	QueryCaselaw:    {chunker.CategoryJurisprudencia, chunker.CategoryCitacao, chunker.CategoryFundamentacao},
	QueryFacts:      {chunker.CategoryProva, chunker.CategoryRelatorio, chunker.CategoryPedido, chunker.CategoryDefesa},
	QueryLegalBasis: {chunker.CategoryFundamentacao, chunker.CategoryCitacao, chunker.CategoryJurisprudencia},
	QueryStructure:  {chunker.CategoryDispositivo, chunker.CategoryFundamentacao, chunker.CategoryRelatorio},
	QueryStyle:      {chunker.CategoryFundamentacao, chunker.CategoryDispositivo},
	QueryProcedure:  {chunker.CategoryFundamentacao, chunker.CategoryCitacao},
	QueryGeneral:    {chunker.CategoryFundamentacao, chunker.CategoryDispositivo, chunker.CategoryPedido},
}

// typeBoosts maps each query type to the additive boosts for its
// preferred categories, by position. Style queries weigh their two best
// categories equally; reasoning and ruling chunks both carry drafting
// style.
var typeBoosts = map[QueryType][]float64{
	QueryCaselaw:    {0.3, 0.2, 0.1},
	QueryFacts:      {0.3, 0.2, 0.1},
	QueryLegalBasis: {0.3, 0.2, 0.1},
	QueryStructure:  {0.3, 0.2, 0.1},
	QueryStyle:      {0.2, 0.2, 0.1},
	QueryProcedure:  {0.3, 0.2, 0.1},
	QueryGeneral:    {0.3, 0.2, 0.1},
}

// classifyQuery returns the first matching query type, QueryGeneral when
// nothing matches.
func classifyQuery(query string) QueryType {
	lower := strings.ToLower(query)
	for _, rule := range typeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.qtype
			}
		}
	}
	return QueryGeneral
}

// categoryBoost returns the additive boost for a category under a query
// type, from the type's boost row. Listed categories past the row's end
// get the row's smallest boost; unlisted categories get 0.
func categoryBoost(qtype QueryType, category chunker.Category) float64 {
	boosts := typeBoosts[qtype]
	for pos, cat := range preferredCategories[qtype] {
		if cat == category {
			if pos >= len(boosts) {
				return boosts[len(boosts)-1]
			}
			return boosts[pos]
		}
	}
	return 0
}

// categoryScore returns the 0..1 preference sub-score: (n-pos)/n for a
// category at position pos of the n preferred categories, 0 if unlisted.
func categoryScore(qtype QueryType, category chunker.Category) float64 {
	prefs := preferredCategories[qtype]
	for pos, cat := range prefs {
		if cat == category {
			return float64(len(prefs)-pos) / float64(len(prefs))
		}
	}
	return 0
}
