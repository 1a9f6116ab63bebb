package snapshot

import "html/template"

var pageTmpl = template.Must(template.New("entry").Parse(`<!doctype html>
<html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>Saved Entry #{{.ID}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;padding:24px;background:#081126;color:#eaf4ff}
.meta{color:#9fb1c9}
table{border-collapse:collapse;margin-bottom:1rem}
td{border:1px solid rgba(255,255,255,.18);padding:6px;text-align:right}
.empty{color:#9fb1c9;font-style:italic}
</style></head>
<body>
<h1>Saved Entry #{{.ID}}</h1>
<p class="meta">{{.Label}} ({{.Operation}}) &mdash; {{.Time}}</p>
<h3>Matrix A</h3>
{{template "table" .A}}
<h3>Matrix B</h3>
{{template "table" .B}}
<h3>Result</h3>
{{template "table" .Result}}
<p><a href="/">Back</a></p>
</body></html>
{{define "table"}}
{{- if .Text}}<pre>{{.Text}}</pre>
{{- else if not .Rows}}<p class="empty">(empty)</p>
{{- else}}<table>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</table>
{{- end}}
{{- end}}`))
