package webchat

import "html/template"

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;margin:0;background:#f6f7f9;color:#1f2328}
main{max-width:760px;margin:0 auto;padding:24px 16px 120px}
h1{font-size:1.6rem;margin:0 0 8px}
.subtitle{color:#57606a;margin:0 0 24px}
.transcript{display:flex;flex-direction:column;gap:16px}
.turn p{margin:4px 0}
.who{font-weight:600}
.bot{background:#fff;border:1px solid #d0d7de;border-radius:8px;padding:8px 12px}
.bot.failed{border-color:#cf222e;color:#cf222e}
pre.code-block{background:#0d1117;color:#e6edf3;border-radius:6px;padding:12px;overflow-x:auto}
form{position:fixed;bottom:0;left:0;right:0;background:#fff;border-top:1px solid #d0d7de;padding:12px}
form div{max-width:760px;margin:0 auto;display:flex;gap:8px}
input[type=text]{flex:1;padding:10px;border:1px solid #d0d7de;border-radius:6px;font-size:1rem}
button{padding:10px 16px;border:0;border-radius:6px;background:#1f6feb;color:#fff;font-size:1rem}
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p class="subtitle">{{.Subtitle}}</p>
<section class="transcript" id="transcript">
{{- range .Turns}}
<article class="turn">
<p><span class="who">You:</span> {{.UserText}}</p>
<div class="bot{{if .Failed}} failed{{end}}"><p class="who">Chatbot:</p>{{.BotHTML}}</div>
</article>
{{- end}}
</section>
</main>
<form method="post" action="/chat">
<div>
<input type="text" name="message" placeholder="Your message:" aria-label="Your message" autocomplete="off" autofocus>
<button type="submit">Send</button>
</div>
</form>
<script>window.scrollTo(0,document.body.scrollHeight);</script>
</body>
</html>
`))

type pageView struct {
	Title    string
	Subtitle string
	Turns    []turnView
}

type turnView struct {
	UserText string
	BotHTML  template.HTML
	Failed   bool
}
