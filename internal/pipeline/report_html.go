package pipeline

import (
	"html/template"
	"os"
	"path/filepath"
)

// WriteHTML writes a single-file HTML rendering of the report for humans
// reviewing a CI run. html/template escaping applies to every field, so
// scanner-supplied titles and descriptions cannot inject markup.
func WriteHTML(path string, rep *Report) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil && dir != "." {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return htmlTemplate.Execute(f, rep)
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Security Gate Report</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; font-size: 0.9rem; }
.pass { color: #1a7f37; font-weight: bold; }
.fail { color: #b42318; font-weight: bold; }
.warn { color: #b25e09; }
.sev-critical { color: #b42318; font-weight: bold; }
.sev-high { color: #d9480f; }
.sev-medium { color: #b25e09; }
.sev-low { color: #555; }
</style>
</head>
<body>
<h1>Security Gate Report</h1>
<p>
Environment <strong>{{.Environment}}</strong>,
tolerance <strong>{{.Tolerance}}</strong>,
generated {{.Timestamp}}.
Result: {{if .Passed}}<span class="pass">PASSED</span>{{else}}<span class="fail">FAILED</span>{{end}}
</p>

<h2>Gates</h2>
<table>
<tr><th>Gate</th><th>Status</th><th>Actual</th><th>Threshold</th><th>Message</th></tr>
{{range .Gates}}
<tr>
<td>{{.Name}}</td>
<td>{{if not .Enabled}}disabled{{else if .Passed}}<span class="pass">pass</span>{{else if .Blocking}}<span class="fail">fail</span>{{else}}<span class="warn">warn</span>{{end}}</td>
<td>{{printf "%.0f" .Actual}}</td>
<td>{{.Threshold}}</td>
<td>{{.Message}}</td>
</tr>
{{end}}
</table>

{{if .Violations}}
<h2>Blocking violations</h2>
<ul>{{range .Violations}}<li class="fail">{{.Message}}</li>{{end}}</ul>
{{end}}

{{if .Warnings}}
<h2>Warnings</h2>
<ul>{{range .Warnings}}<li class="warn">{{.Message}}</li>{{end}}</ul>
{{end}}

<h2>Findings ({{.Summary.Total}})</h2>
<table>
<tr><th>Severity</th><th>Title</th><th>Source</th><th>Type</th><th>Approved</th></tr>
{{range .Vulnerabilities}}
<tr>
<td class="sev-{{.Severity}}">{{.Severity}}</td>
<td>{{.Title}}</td>
<td>{{.Source}}</td>
<td>{{.SourceType}}</td>
<td>{{if .Approved}}yes{{end}}</td>
</tr>
{{end}}
</table>

{{if .Recommendations}}
<h2>Recommendations</h2>
<ol>{{range .Recommendations}}<li>{{.}}</li>{{end}}</ol>
{{end}}
</body>
</html>
`))
