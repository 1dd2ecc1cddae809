package preview

import (
	"strings"
	"text/template"
)

// Libraries loaded by every preview document.
var (
	scriptURLs = []string{
		"https://unpkg.com/react@18/umd/react.development.js",
		"https://unpkg.com/react-dom@18/umd/react-dom.development.js",
		"https://unpkg.com/@babel/standalone/babel.min.js",
	}
	styleURLs = []string{
		"https://cdn.tailwindcss.com",
	}
)

// MessageType is the only message the preview document posts to its host.
const MessageType = "preview-error"

var documentTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
{{range .Scripts}}<script crossorigin src="{{.}}"></script>
{{end}}{{range .Styles}}<link rel="stylesheet" href="{{.}}">
{{end}}<style>
html,body{margin:0;padding:0;background:#ffffff;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif}
*{box-sizing:border-box}
</style>
</head>
<body>
<div id="root"></div>
<script>
window.addEventListener('error', function(e) {
  window.parent.postMessage({
    type: '{{.MessageType}}',
    error: { message: e.message, type: 'runtime' }
  }, '*');
});
</script>
<script type="text/babel">
const {useState,useEffect,useRef,useCallback,useMemo,useReducer,useContext,createContext,Fragment}=React;
try {
{{.Code}}
  const root=ReactDOM.createRoot(document.getElementById('root'));
  root.render(React.createElement(App));
} catch(e) {
  window.parent.postMessage({
    type: '{{.MessageType}}',
    error: { message: e.message, type: 'runtime' }
  }, '*');
}
</script>
</body>
</html>
`))

// BuildDocument embeds prepared component code into a standalone HTML page
// that mounts App at #root and reports failures to its parent window.
func BuildDocument(prepared string) (string, error) {
	var sb strings.Builder
	err := documentTemplate.Execute(&sb, struct {
		Scripts     []string
		Styles      []string
		MessageType string
		Code        string
	}{scriptURLs, styleURLs, MessageType, prepared})
	if err != nil {
		return "", &Error{Message: "build preview document: " + err.Error(), Type: ErrorParse}
	}
	return sb.String(), nil
}
