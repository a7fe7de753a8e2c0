package melissa

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/provider"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

// Row is one line of the results table. RawText joins the uppercase
// cells; NormalizedName is the first cell.
type Row struct {
	model.Candidate
	Cells []string
}

// ParseRows reads the results table from markup. Record links are
// resolved against the document's base, when it has one.
func ParseRows(markup string) ([]Row, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, eris.Wrap(err, "melissa: parse results")
	}
	base := doc.Find("base[href]").First().AttrOr("href", "")

	var rows []Row
	doc.Find(resultRows).Each(func(i int, tr *goquery.Selection) {
		row := Row{Candidate: model.Candidate{RowIndex: i}}
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			row.Cells = append(row.Cells, strings.ToUpper(scrape.CollapseSpace(td.Text())))
		})
		if len(row.Cells) > 0 {
			row.NormalizedName = model.NormalizeName(row.Cells[0])
		}
		row.RawText = strings.Join(row.Cells, " ")
		if href := tr.Find(recordLinkSel).First().AttrOr("href", ""); href != "" {
			row.DetailURL = resolveRef(base, href)
		}
		rows = append(rows, row)
	})
	return rows, nil
}

func resolveRef(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// Record is the contact data read from a detail view.
type Record struct {
	Phone   string
	Email   string
	Address string
}

func (r Record) empty() bool {
	return r.Phone == "" && r.Email == "" && r.Address == ""
}

func (r Record) result(tier int, detail string) model.ProviderResult {
	res := model.ProviderResult{
		ProviderID: Name,
		Tier:       tier,
		Success:    true,
		Email:      r.Email,
		Address:    r.Address,
		Detail:     detail,
	}
	if r.Phone != "" {
		res.Phones = []model.Phone{{Number: r.Phone, Type: model.PhoneUnknown}}
	}
	return res
}

// IsRecordView reports whether markup shows a person record rather than
// a form or a listing.
func IsRecordView(markup string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return doc.Find(phoneLinkSel).Length() > 0 || addressCell(doc) != ""
}

// ExtractDetail reads phone, email and address from a detail view using
// the fixed selectors, then scans the visible text for whatever they
// missed.
func ExtractDetail(markup string) Record {
	var rec Record
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return rec
	}

	rec.Phone = strings.TrimSpace(doc.Find(phoneLinkSel).First().Text())

	if el := doc.Find(emailLinkSel).First(); el.Length() > 0 {
		t := strings.TrimSpace(el.Text())
		if t == "" {
			t = el.AttrOr("href", "")
		}
		rec.Email = strings.TrimSpace(strings.TrimPrefix(t, "mailto:"))
	}

	rec.Address = addressCell(doc)

	if rec.Phone != "" && rec.Email != "" && rec.Address != "" {
		return rec
	}
	facts := provider.ScanText(scrape.StripHTML(markup))
	if rec.Phone == "" && len(facts.Phones) > 0 {
		rec.Phone = facts.Phones[0]
	}
	if rec.Email == "" && len(facts.Emails) > 0 {
		rec.Email = facts.Emails[0]
	}
	if rec.Address == "" {
		rec.Address = facts.Address
	}
	return rec
}

// addressCell returns the cell following the one labelled "Address".
func addressCell(doc *goquery.Document) string {
	var addr string
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if strings.TrimSpace(td.Text()) != addressLabel {
			return true
		}
		addr = scrape.CollapseSpace(td.NextFiltered("td").Text())
		return addr == ""
	})
	return addr
}
