package namespace

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Master template seed files. Every new namespace receives a copy of
// these so cases share a consistent reference corpus without sharing
// mutable state.
var masterTemplateFiles = map[string]string{
	"estrutura_sentenca.json": `{
  "sections": {
    "relatorio": {
      "title": "I - RELATÓRIO",
      "order": 1,
      "subsections": [
        "Identificação das partes",
        "Síntese da petição inicial",
        "Síntese da contestação",
        "Síntese da instrução probatória"
      ]
    },
    "fundamentacao": {
      "title": "II - FUNDAMENTAÇÃO",
      "order": 2,
      "subsections": [
        "Das Preliminares",
        "Das Prejudiciais de Mérito",
        "Do Mérito"
      ]
    },
    "dispositivo": {
      "title": "III - DISPOSITIVO",
      "order": 3,
      "subsections": [
        "Decisão final",
        "Condenações específicas",
        "Custas e honorários"
      ]
    }
  }
}
`,
	"estilo_redacao.json": `{
  "linguagem": {
    "formal": true,
    "tecnica": true,
    "tempo_verbal": "presente_indicativo",
    "conectores_tipicos": [
      "Outrossim", "Ademais", "Destarte", "Com efeito",
      "Nesse sentido", "Assim sendo", "Por conseguinte",
      "Nesta toada", "De outra banda", "Portanto"
    ]
  },
  "estrutura_paragrafo": {
    "introducao_topica": true,
    "desenvolvimento_argumentativo": true,
    "conclusao_transicional": true
  },
  "citacoes": {
    "formato_dispositivos": "Art. {numero} da {lei}",
    "formato_jurisprudencia": "Súmula {numero} do {tribunal}",
    "formato_doutrina": "Conforme ensina {autor}"
  },
  "expressoes_recorrentes": [
    "Vislumbro que", "Destarte", "É cediço que",
    "Ademais", "Nesse diapasão", "Pelos fundamentos expostos"
  ]
}
`,
	"conhecimento_base.json": `{
  "dispositivos": [
    "Art. 7º da CF/88 - Direitos dos trabalhadores",
    "Art. 59 da CLT - Horas extras",
    "Art. 71 da CLT - Intervalo intrajornada",
    "Art. 477 da CLT - Verbas rescisórias"
  ],
  "jurisprudencia_consolidada": [
    "Súmula 85 do TST - Horas extras habituais",
    "Súmula 437 do TST - Intervalo intrajornada",
    "OJ 342 da SDI-1 do TST - Horas in itinere"
  ],
  "tipos_pedidos_comuns": [
    "horas_extras", "intervalo_intrajornada", "verbas_rescisorias",
    "danos_morais", "adicional_noturno", "dsr_sobre_horas"
  ]
}
`,
}

// initializedFlag marks a fully seeded master template.
const initializedFlag = "initialized.flag"

// ensureMasterTemplate seeds the shared template directory once.
func (m *Manager) ensureMasterTemplate() error {
	master := m.masterDir()

	if _, err := os.Stat(filepath.Join(master, initializedFlag)); err == nil {
		return nil
	}

	if err := os.MkdirAll(master, 0755); err != nil {
		return fmt.Errorf("creating master template dir: %w", err)
	}

	for name, content := range masterTemplateFiles {
		if err := os.WriteFile(filepath.Join(master, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("seeding master template %s: %w", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(master, initializedFlag), []byte{}, 0644); err != nil {
		return fmt.Errorf("writing template flag: %w", err)
	}

	m.logger.Info("master template initialized", zap.String("path", master))
	return nil
}
