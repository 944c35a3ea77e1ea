package transfer

import (
	"bytes"
	"html/template"
	"time"
)

// printoutTemplate is the A4 layout the warehouse crew signs on paper.
var printoutTemplate = template.Must(template.New("printout").Funcs(template.FuncMap{
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"fmtTimePtr": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Number}}</title>
<style>
  body { font-family: sans-serif; font-size: 12px; margin: 24px; }
  h1 { font-size: 18px; margin-bottom: 2px; }
  .meta { color: #333; margin-bottom: 16px; }
  table { width: 100%; border-collapse: collapse; }
  th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; }
  th { background: #eee; }
  td.num { text-align: right; }
  .summary { margin-top: 12px; }
  .signatures { margin-top: 48px; display: flex; justify-content: space-between; }
  .signatures div { width: 40%; border-top: 1px solid #000; text-align: center; padding-top: 4px; }
</style>
</head>
<body>
<h1>Warehouse transfer {{.Number}}</h1>
<p class="meta">
  {{if .SourceWarehouse}}From: {{.SourceWarehouse}}{{end}}
  {{if .TargetWarehouse}} &rarr; To: {{.TargetWarehouse}}{{end}}<br>
  Status: {{.Status}} &middot; Created by {{.CreatedBy}} at {{fmtTime .CreatedAt}}
  {{if .ClosedAt}}&middot; Closed by {{.ClosedByName}} at {{fmtTimePtr .ClosedAt}}{{end}}
</p>
<table>
<tr>
  <th>#</th><th>Index</th><th>Name</th><th>Batch</th><th>Unit</th>
  <th>Planned</th><th>Issued</th><th>Received</th><th>Diff</th><th>Status</th>
</tr>
{{range .Items}}
<tr>
  <td>{{.LineNo}}</td>
  <td>{{.IndexCode}}</td>
  <td>{{.Name}}</td>
  <td>{{.Batch}}</td>
  <td>{{.Unit}}</td>
  <td class="num">{{.PlannedQty}}</td>
  <td class="num">{{.IssuedQty}}</td>
  <td class="num">{{.ReceivedQty}}</td>
  <td class="num">{{.DiffQty}}</td>
  <td>{{.Status}}</td>
</tr>
{{end}}
</table>
<p class="summary">
  Items: {{.Summary.ItemsCount}} ({{.Summary.CompletedItemsCount}} completed) &middot;
  Planned: {{.Summary.PlannedQtyTotal}} &middot;
  Issued: {{.Summary.IssuedQtyTotal}} &middot;
  Received: {{.Summary.ReceivedQtyTotal}}
</p>
<div class="signatures">
  <div>Issued by</div>
  <div>Received by</div>
</div>
</body>
</html>`))

// PrintoutHTML renders the document detail view as the printable HTML page
// that the PDF pipeline converts.
func PrintoutHTML(details DocumentDetails) (string, error) {
	var buf bytes.Buffer
	if err := printoutTemplate.Execute(&buf, details); err != nil {
		return "", err
	}
	return buf.String(), nil
}
