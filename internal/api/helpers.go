package api

import (
	"convogate/internal/templates"
	"convogate/internal/whatsapp"
)

func templatePayload(name, lang string, built *templates.BuildResult) whatsapp.TemplateObj {
	return whatsapp.TemplateObj{
		Name:       name,
		Language:   whatsapp.LanguageObj{Code: lang},
		Components: built.Components,
	}
}
