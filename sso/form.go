/*
 * Copyright 2025 Averho and its licensors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package sso

import (
	"html/template"
	"net/http"
)

// autoSubmitFormTemplate renders a self-submitting HTML form posting the
// provided fields to the target URL. Used to hand tokens and logout
// messages through the browser. Values are escaped by html/template.
var autoSubmitFormTemplate = template.Must(template.New("autosubmit").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Continue</title>
</head>
<body onload="document.forms[0].submit()">
<noscript><p>JavaScript is disabled. Click the button below to continue.</p></noscript>
<form method="post" action="{{.Target}}">
{{- range $name, $value := .Fields}}
<input type="hidden" name="{{$name}}" value="{{$value}}">
{{- end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

type autoSubmitFormData struct {
	Target string
	Fields map[string]string
}

// writeAutoSubmitForm writes the auto-submitting form carrying the
// provided fields to the provided target URL.
func writeAutoSubmitForm(rw http.ResponseWriter, target string, fields map[string]string) error {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Header().Set("Cache-Control", "no-store")
	rw.Header().Set("Pragma", "no-cache")
	rw.WriteHeader(http.StatusOK)

	return autoSubmitFormTemplate.Execute(rw, &autoSubmitFormData{
		Target: target,
		Fields: fields,
	})
}
