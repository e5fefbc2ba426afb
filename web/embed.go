package web

import "embed"

// TemplatesFS embeds the dashboard HTML templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the dashboard script and stylesheet.
//
//go:embed static/*
var StaticFS embed.FS
