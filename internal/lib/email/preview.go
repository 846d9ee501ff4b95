package email

// PreviewData holds sample values for each template, used to render
// previews locally and in tests.
var PreviewData = map[Template]map[string]string{
	TemplateIssueAlert: {
		"Title":        "TypeError: cannot read property 'id' of undefined",
		"Culprit":      "app/components/Checkout.tsx in submit",
		"Level":        "error",
		"ProjectSlug":  "web",
		"Organization": "acme",
		"URL":          "https://trackr.example.com/organizations/acme/issues/42/",
	},
	TemplateIssueWorkflow: {
		"Title":        "TypeError: cannot read property 'id' of undefined",
		"Status":       "resolved",
		"ProjectSlug":  "web",
		"Organization": "acme",
		"URL":          "https://trackr.example.com/organizations/acme/issues/42/",
	},
	TemplateDeploy: {
		"Release":      "web@1.4.2",
		"ProjectSlug":  "web",
		"Organization": "acme",
		"URL":          "https://trackr.example.com/organizations/acme/",
	},
	TemplateNotice: {
		"Title":        "Your organization is approaching its event quota",
		"Body":         "Events beyond the quota will be dropped until the next billing period.",
		"Organization": "acme",
		"URL":          "https://trackr.example.com/organizations/acme/",
	},
}
