package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const maxWarningLines = 30

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) RenderReport(ctx context.Context, data ReportData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, data.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(12,
		col.New(8).Add(
			text.New(data.Subtitle, props.Text{Size: 10}),
			text.New("Generado: "+data.GeneratedAt, props.Text{Top: 5, Size: 8}),
		),
		text.NewCol(4, data.DocumentID, props.Text{Size: 7, Align: align.Right}),
	)

	addCards(m, data.Cards)

	if len(data.Ranking) > 0 {
		addSectionTitle(m, data.RankingTitle)
		m.AddRow(7,
			text.NewCol(2, "#", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(7, "Centro", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.NewCol(3, "Cumplimiento", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		)
		for _, row := range data.Ranking {
			m.AddRow(6,
				text.NewCol(2, row.Rank, props.Text{Size: 9}),
				text.NewCol(7, row.Name, props.Text{Size: 9}),
				text.NewCol(3, row.Compliance, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	addSectionTitle(m, data.IndicatorsTitle)
	m.AddRow(7,
		text.NewCol(1, "Código", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(5, "Indicador", props.Text{Style: fontstyle.Bold, Size: 8}),
		text.NewCol(1, "Meta", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
		text.NewCol(2, "Resultado", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
		text.NewCol(2, "Cumplimiento", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
		text.NewCol(1, "Estado", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Center}),
	)
	for _, row := range data.Indicators {
		m.AddRow(10,
			text.NewCol(1, row.Code, props.Text{Size: 8}),
			text.NewCol(5, row.Name, props.Text{Size: 8}),
			text.NewCol(1, row.Target, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, row.Value, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(2, row.Compliance, props.Text{Size: 8, Align: align.Right}),
			text.NewCol(1, row.Status, props.Text{Size: 8, Align: align.Center}),
		)
	}

	if len(data.Warnings) > 0 {
		addSectionTitle(m, "Advertencias de datos")
		for i, w := range data.Warnings {
			if i == maxWarningLines {
				m.AddRow(5, text.NewCol(12, "…", props.Text{Size: 7}))
				break
			}
			m.AddRow(5, text.NewCol(12, w, props.Text{Size: 7}))
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func addSectionTitle(m core.Maroto, title string) {
	m.AddRow(12,
		text.NewCol(12, title, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)
}

// addCards lays summary cards out three per row.
func addCards(m core.Maroto, cards []Card) {
	for start := 0; start < len(cards); start += 3 {
		end := start + 3
		if end > len(cards) {
			end = len(cards)
		}
		cols := make([]core.Col, 0, 3)
		for _, c := range cards[start:end] {
			cols = append(cols, col.New(4).Add(
				text.New(c.Label, props.Text{Size: 8}),
				text.New(c.Value, props.Text{Top: 5, Size: 13, Style: fontstyle.Bold}),
			))
		}
		for len(cols) < 3 {
			cols = append(cols, col.New(4))
		}
		m.AddRow(16, cols...)
	}
}
