package web

import (
	"fmt"
	"html"
)

const pageStyle = `
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: #FAFAFA;
        }
        .container {
            text-align: center;
            background: white;
            padding: 48px 64px;
            border-radius: 16px;
            border: 1px solid #C7C8CC;
            box-shadow: 0 4px 24px rgba(0,0,0,0.08);
            max-width: 480px;
        }
        h1 { color: #333F50; margin: 0 0 8px 0; font-size: 24px; font-weight: 600; }
        p { color: #7B8088; margin: 0 0 24px 0; font-size: 16px; }
        a.button {
            display: inline-block;
            padding: 12px 28px;
            border-radius: 8px;
            background: #0061FE;
            color: white;
            text-decoration: none;
            font-weight: 600;
        }`

func layout(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>ocrbox - %s</title>
    <style>%s
    </style>
</head>
<body>
    <div class="container">
%s
    </div>
</body>
</html>`, html.EscapeString(title), pageStyle, body)
}

func indexHTML() string {
	return layout("Connect Dropbox", `        <h1>ocrbox</h1>
        <p>Connect a Dropbox account. Images dropped into its Inbox folder are
        transcribed, tagged and filed in the Outbox.</p>
        <a class="button" href="/authorize">Connect Dropbox</a>`)
}

func resultHTML(title, message string) string {
	return layout(title, fmt.Sprintf(`        <h1>%s</h1>
        <p>%s</p>`, html.EscapeString(title), html.EscapeString(message)))
}
